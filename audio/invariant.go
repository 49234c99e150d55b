//go:build !debug

package audio

import "log"

// panicOrLog reports a broken internal invariant. Release builds log and let
// the caller recover; debug builds panic.
func panicOrLog(format string, args ...interface{}) {
	log.Printf("audio: invariant violated: "+format, args...)
}
