//go:build debug

package audio

import "fmt"

func panicOrLog(format string, args ...interface{}) {
	panic(fmt.Sprintf("audio: invariant violated: "+format, args...))
}
