// Package command interprets slash commands typed into a buffer.
package command

import (
	"strings"
	"unicode"
)

// Prefix marks a line as a candidate command
const Prefix = "/"

// Invocation is a recognised command name and its unparsed arguments
type Invocation struct {
	Name string
	Args string
}

// Parse reports whether line invokes one of the commands accepted by known.
// Names are matched lower-cased. Anything else, including a bare "/", is
// ordinary content and the caller should use the original line unchanged.
func Parse(line string, known func(name string) bool) (Invocation, bool) {
	if !strings.HasPrefix(line, Prefix) {
		return Invocation{}, false
	}
	rest := strings.TrimLeftFunc(line[len(Prefix):], unicode.IsSpace)
	if rest == "" {
		return Invocation{}, false
	}

	name, args := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
	}
	name = strings.ToLower(name)

	if !known(name) {
		return Invocation{}, false
	}
	return Invocation{Name: name, Args: args}, true
}
