package crawl

// SeenTitles is the set of identity values accepted so far in one run.
// It only grows; a Crawler creates one per Run.
type SeenTitles map[string]struct{}

// Add records title as seen.
func (s SeenTitles) Add(title string) { s[title] = struct{}{} }

// Has reports whether title was already accepted.
func (s SeenTitles) Has(title string) bool {
	_, ok := s[title]
	return ok
}

// IsComplete reports whether every required key exists in r.
// Values are not inspected: null and "" count as present.
func IsComplete(r *Record, requiredKeys []string) bool {
	for _, key := range requiredKeys {
		if !r.Has(key) {
			return false
		}
	}
	return true
}

// IsDuplicate reports whether title is already in seen. Matching is exact
// and case-sensitive.
func IsDuplicate(title string, seen SeenTitles) bool {
	return seen.Has(title)
}

// IdentityKey is the SeenTitles key for an identity value. Strings key on
// their text alone; other kinds carry their kind, so the number 5 and the
// string "5" stay distinct.
func IdentityKey(v Value) string {
	if v.Kind() == KindString {
		return v.Text()
	}
	return v.Kind().String() + "\x00" + v.Text()
}
