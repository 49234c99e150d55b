package dub

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func pattern(items ...matchItem) MatchExpr {
	return MatchExpr{matchers: items}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{
			input: "audio drums 1 1 2",
			want: Command{
				Name: "audio",
				Args: []Node{Identifier("drums"), Int(1), Int(1), Int(2)},
			},
		},
		{
			input: `load drums 0 "x.wav"`,
			want: Command{
				Name: "load",
				Args: []Node{Identifier("drums"), Int(0), String("x.wav")},
			},
		},
		{
			input: `load drums 1 "my kit/snare \"tight\".wav"`,
			want: Command{
				Name: "load",
				Args: []Node{Identifier("drums"), Int(1), String(`my kit/snare "tight".wav`)},
			},
		},
		{
			input: `load drums 0 ""`,
			want: Command{
				Name: "load",
				Args: []Node{Identifier("drums"), Int(0), String("")},
			},
		},
		{
			input: "set notation loop-end 32",
			want: Command{
				Name: "set",
				Args: []Node{Identifier("notation"), Identifier("loop-end"), Int(32)},
			},
		},
		{
			input: "setc drums volume volume -.5",
			want: Command{
				Name: "setc",
				Args: []Node{Identifier("drums"), Identifier("volume"), Identifier("volume"), Float(-0.5)},
			},
		},
		{
			input: "setp drums 0 '1",
			want: Command{
				Name: "setp",
				Args: []Node{Identifier("drums"), Int(0), pattern(matchItem{level: 0, matcher: listMatch{1}})},
			},
		},
		{
			input: "setp drums 0 '*/*",
			want: Command{
				Name: "setp",
				Args: []Node{Identifier("drums"), Int(0), pattern(
					matchItem{level: 0, matcher: matchAll},
					matchItem{level: 1, matcher: matchAll},
				)},
			},
		},
		{
			input: "setp drums 1 '1,2//3:4",
			want: Command{
				Name: "setp",
				Args: []Node{Identifier("drums"), Int(1), pattern(
					matchItem{level: 0, matcher: listMatch{1, 2}},
					matchItem{level: 2, matcher: rangeMatch{start: 3, end: 4}},
				)},
			},
		},
		{
			input: "a '*//3,4 2",
			want: Command{
				Name: "a",
				Args: []Node{pattern(
					matchItem{level: 0, matcher: matchAll},
					matchItem{level: 2, matcher: listMatch{3, 4}},
				), Int(2)},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := Parse(test.input)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(test.want, got) {
				t.Errorf("\nwant: %+v\ngot:  %+v", test.want, got)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		text  string
	}{
		{"", ""},
		{"3 drums", "3"},
		{"setp drums 0 '1/", ""},
		{"setp drums 0 '1:*", "*"},
		{"setp drums 0 '1,", ""},
		{"setp drums 0 ',", ","},
		{"audio drums , 1", ","},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			_, err := Parse(test.input)
			var syntax *SyntaxError
			if !errors.As(err, &syntax) {
				t.Fatalf("expected a syntax error, got %v", err)
			}
			if want, got := test.text, syntax.Text; want != got {
				t.Errorf("expected error at %q, got %q", want, got)
			}
		})
	}

	_, err := Parse("setp drums 0 '1:*")
	if err == nil || !strings.HasPrefix(err.Error(), "setp: argument 3: ") {
		t.Errorf("expected error to name the command and argument, got %v", err)
	}
}
