package emoji

// Validate returns the candidates known to snap, in their original order.
//
// A simple code is valid when the snapshot holds it verbatim. A code with a
// modifier is valid when its base is in the snapshot; the modifier itself is
// not looked up. Unknown codes are dropped without error.
func Validate(candidates []string, snap *Snapshot) []string {
	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if snap.Contains(Base(c)) {
			valid = append(valid, c)
		}
	}
	return valid
}
