// Package emoji turns free-form user text into Slack emoji short-codes and
// checks them against a workspace's emoji vocabulary.
package emoji

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

// modifierSep separates a base short-code from its skin-tone modifier,
// e.g. "thumbsup::skin-tone-2".
const modifierSep = "::"

// shortcodePattern matches ":name:" and ":name::skin-tone-N:".
// Interior whitespace and nested colons never match.
var shortcodePattern = regexp.MustCompile(`:[a-z0-9\-_+']+(?:::skin-tone-\d+)?:`)

// Parse extracts the emoji short-codes in text, in first-occurrence order and
// without duplicates. The enclosing colons are stripped. The result is a
// literal candidate list; nothing is checked against a vocabulary.
func Parse(text string) []string {
	matches := shortcodePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		code := m[1 : len(m)-1]
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// Base returns the short-code without its modifier.
func Base(code string) string {
	if i := strings.Index(code, modifierSep); i >= 0 {
		return code[:i]
	}
	return code
}

// Join renders codes the way they are persisted: space separated, no colons.
func Join(codes []string) string {
	return strings.Join(codes, " ")
}

// Split is the inverse of Join. Blank input yields nil.
func Split(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Render wraps each code in colons for display in a chat message.
func Render(codes []string) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = ":" + c + ":"
	}
	return strings.Join(parts, " ")
}

// ContainsUnicode reports whether text holds literal unicode emoji
// characters, which Parse ignores.
func ContainsUnicode(text string) bool {
	return len(gomoji.FindAll(text)) > 0
}
