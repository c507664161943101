// Package reaction applies a user's saved reactions to a Slack message,
// adding only the ones the user has not already placed there.
package reaction

import (
	"slices"

	"github.com/slack-go/slack"
)

// Diff returns the elements of saved that are not in applied, in saved's
// order.
func Diff(saved []string, applied map[string]struct{}) []string {
	missing := make([]string, 0, len(saved))
	for _, name := range saved {
		if _, ok := applied[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// AppliedBy returns the names of the reactions userID has placed, as reported
// by reactions.get. slack-go already resolves the message, file and
// file_comment response shapes into one list.
func AppliedBy(reactions []slack.ItemReaction, userID string) map[string]struct{} {
	applied := make(map[string]struct{})
	for _, r := range reactions {
		if slices.Contains(r.Users, userID) {
			applied[r.Name] = struct{}{}
		}
	}
	return applied
}
