// Package sanitize strips markdown markup from model output while keeping its text.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```[^`\\n]*\\n?(.*?)```")
	strayFenceRe = regexp.MustCompile("`{3,}")
	inlineCodeRe = regexp.MustCompile("`([^`\\n]+)`")
	// "##Titre" is a heading; a single "#" needs a following space so "#1" survives.
	headingRe   = regexp.MustCompile(`(?m)^[ \t]{0,3}(?:#{2,6}[ \t]*|#(?:[ \t]+|$))`)
	tripleRe    = regexp.MustCompile(`\*{3}([^*\n]+?)\*{3}`)
	boldRe      = regexp.MustCompile(`\*{2}([^*\n]+?)\*{2}`)
	underBoldRe = regexp.MustCompile(`__([^_\n]+?)__`)
	// Single-marker emphasis must not touch identifiers (dental_diagnosis) or arithmetic (2*3*4),
	// so the markers may not sit between letters or digits.
	italicRe      = regexp.MustCompile(`(^|[^*\p{L}\p{N}_])\*([^*\s](?:[^*\n]*?[^*\s])?)\*($|[^*\p{L}\p{N}_])`)
	underItalicRe = regexp.MustCompile(`(^|[^_\p{L}\p{N}*])_([^_\s](?:[^_\n]*?[^_\s])?)_($|[^_\p{L}\p{N}*])`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

// Text removes emphasis, heading and code markup. It is pure and idempotent:
// Text(Text(s)) == Text(s) for every s.
func Text(s string) string {
	if s == "" {
		return s
	}
	// Every pass only deletes characters, so iterating to a fixed point terminates and makes
	// overlapping or nested markup (e.g. "*a* *b*", "**a *b* c**") fully unwrap.
	for {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func pass(s string) string {
	s = fenceRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := fenceRe.FindStringSubmatch(m)[1]
		return strings.Trim(inner, "\n")
	})
	s = strayFenceRe.ReplaceAllString(s, "")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")

	s = tripleRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1")
	s = underBoldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1$2$3")
	s = underItalicRe.ReplaceAllString(s, "$1$2$3")

	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
