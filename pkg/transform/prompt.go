package transform

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/folio/pkg/rag"
)

const systemPrompt = `You rewrite follow-up messages from a conversation about indexed documents into one self-contained search question.

Rules:
1. Resolve pronouns and ellipsis using the recent conversation.
2. Keep product names, numbers and technical terms exactly as written.
3. Answer in the language of the message.
4. Reply with the rewritten question only, no labels or quotes.`

// labelPrefixes are stripped from model output, case-insensitively.
var labelPrefixes = []string{"rag query:", "query:", "pergunta:", "question:"}

// buildContext renders the last window turns, each cut to maxChars runes.
func buildContext(history rag.History, window, maxChars int) string {
	var b strings.Builder
	for _, t := range history.Last(window) {
		role := t.Role
		if role == "" {
			continue
		}
		fmt.Fprintf(&b, "%s%s: %s\n", strings.ToUpper(role[:1]), role[1:], truncateRunes(t.Content, maxChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildPrompt(context, message string) string {
	return fmt.Sprintf("Recent conversation:\n%s\n\nMessage: %s\n\nRewritten question:", context, message)
}

// cleanOutput removes label prefixes and wrapping quotes the model may add.
func cleanOutput(out string) string {
	out = strings.TrimSpace(out)
	for _, prefix := range labelPrefixes {
		if len(out) >= len(prefix) && strings.EqualFold(out[:len(prefix)], prefix) {
			out = strings.TrimSpace(out[len(prefix):])
		}
	}
	return strings.TrimSpace(strings.Trim(out, `"'`))
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
