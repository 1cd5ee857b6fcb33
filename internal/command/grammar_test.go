package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func knownNames(name string) bool {
	switch name {
	case "join", "query", "me", "nick", "connect":
		return true
	}
	return false
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		name string
		args string
	}{
		{line: "/join #go", ok: true, name: "join", args: "#go"},
		{line: "/JOIN #go secret", ok: true, name: "join", args: "#go secret"},
		{line: "/Me waves  hello ", ok: true, name: "me", args: "waves  hello "},
		{line: "/me \t  spaced  out\t", ok: true, name: "me", args: "spaced  out\t"},
		{line: "/connect", ok: true, name: "connect", args: ""},
		{line: "/ nick bob", ok: true, name: "nick", args: "bob"},
		{line: "/shrug", ok: false},
		{line: "hello /join #go", ok: false},
		{line: "join #go", ok: false},
		{line: "/", ok: false},
		{line: "/   ", ok: false},
		{line: "", ok: false},
	}

	for _, tt := range tests {
		inv, ok := Parse(tt.line, knownNames)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.name, inv.Name, "line %q", tt.line)
			assert.Equal(t, tt.args, inv.Args, "line %q", tt.line)
		} else {
			assert.Equal(t, Invocation{}, inv, "line %q", tt.line)
		}
	}
}
