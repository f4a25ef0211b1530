package entity

// NormalizeGroups returns the group set an item carries at rest: never
// empty, duplicates removed, order preserved.
func NormalizeGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g != "" && !containsString(out, g) {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		out = append(out, GeneralGroup)
	}
	return out
}

// MergeGroup unions a persona's primary group into an item's existing
// groups. An empty primary (Ei) leaves the existing set untouched apart
// from normalization, so merging is idempotent.
func MergeGroup(existing []string, primary string) []string {
	out := NormalizeGroups(existing)
	if primary == "" || containsString(out, primary) {
		return out
	}
	return append(out, primary)
}

// GroupsForNewItem is the group set a freshly extracted item starts with:
// the originating persona's primary group, or General when the persona has
// none.
func GroupsForNewItem(p *Persona) []string {
	if p == nil || p.GroupPrimary == "" {
		return []string{GeneralGroup}
	}
	return []string{p.GroupPrimary}
}

// CanSee reports whether a persona may read an item carrying the given
// groups. Ei bypasses visibility entirely.
func CanSee(p *Persona, itemGroups []string) bool {
	if p == nil || p.IsEi() {
		return true
	}
	visible := p.VisibleGroups()
	for _, g := range NormalizeGroups(itemGroups) {
		if containsString(visible, g) {
			return true
		}
	}
	return false
}
