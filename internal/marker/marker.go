// Package marker defines the structural delimiter protocol shared by context
// assembly and compaction. Both sides locate section boundaries by these
// exact strings; renaming or restructuring them is a breaking change and
// requires a version bump.
package marker

import (
	"fmt"
	"strings"
)

// Version tags every marker so a reader can detect a protocol mismatch.
const Version = "v1"

// Start returns the opening delimiter for a named section.
func Start(name string) string {
	return fmt.Sprintf("<<<bucle:section name=%s %s>>>", name, Version)
}

// End returns the closing delimiter for a named section.
func End(name string) string {
	return fmt.Sprintf("<<<bucle:end name=%s>>>", name)
}

// Wrap encloses body in the delimiters for a named section.
func Wrap(name, body string) string {
	return Start(name) + "\n" + body + "\n" + End(name)
}

// Find extracts the body of a named section from a rendered payload. The
// second return value reports whether the section was present.
func Find(payload, name string) (string, bool) {
	start := Start(name)
	end := End(name)
	i := strings.Index(payload, start)
	if i == -1 {
		return "", false
	}
	rest := payload[i+len(start):]
	j := strings.Index(rest, end)
	if j == -1 {
		return "", false
	}
	return strings.Trim(rest[:j], "\n"), true
}
