package verify

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// WordDiff renders a word-level edit script that turns a into b.
// Words are whitespace separated. Deleted words are shown as [-word-],
// inserted words as {+word+} and unchanged words as-is.
//
// Example:
//
//	verify.WordDiff("The sky is blue.", "The sky is green.")
//	// The sky is [-blue.-] {+green.+}
func WordDiff(a, b string) string {
	aw, bw := strings.Fields(a), strings.Fields(b)

	out := make([]string, 0, len(aw)+len(bw))
	for _, op := range difflib.NewMatcher(aw, bw).GetOpCodes() {
		switch op.Tag {
		case 'e':
			out = append(out, aw[op.I1:op.I2]...)
		case 'd':
			out = appendMarked(out, aw[op.I1:op.I2], "[-", "-]")
		case 'i':
			out = appendMarked(out, bw[op.J1:op.J2], "{+", "+}")
		case 'r':
			out = appendMarked(out, aw[op.I1:op.I2], "[-", "-]")
			out = appendMarked(out, bw[op.J1:op.J2], "{+", "+}")
		}
	}
	return strings.Join(out, " ")
}

// ChangedWords counts the words that differ between a and b.
func ChangedWords(a, b string) int {
	aw, bw := strings.Fields(a), strings.Fields(b)
	n := 0
	for _, op := range difflib.NewMatcher(aw, bw).GetOpCodes() {
		if op.Tag != 'e' {
			n += (op.I2 - op.I1) + (op.J2 - op.J1)
		}
	}
	return n
}

func appendMarked(out, words []string, pre, post string) []string {
	for _, w := range words {
		out = append(out, pre+w+post)
	}
	return out
}
