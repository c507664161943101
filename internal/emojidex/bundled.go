package emojidex

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kyokomi/emoji/v2"
)

// Bundled serves the standard emoji compiled into the binary. It never fails.
type Bundled struct {
	once  sync.Once
	names []string
}

// StandardEmoji returns the bundled short-codes, sorted.
func (b *Bundled) StandardEmoji(_ context.Context) ([]string, error) {
	b.once.Do(func() {
		codeMap := emoji.CodeMap()
		names := make([]string, 0, len(codeMap))
		for k := range codeMap {
			name := strings.TrimSuffix(strings.TrimPrefix(k, ":"), ":")
			if isSlackShortcode(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		b.names = names
	})
	return b.names, nil
}

// isSlackShortcode reports whether name only uses the characters Slack
// allows in short-codes.
func isSlackShortcode(name string) bool {
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '+' && r != '\'' {
			return false
		}
	}
	return len(name) > 0
}
