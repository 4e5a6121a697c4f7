package migrate

import "strconv"

// ParseBlockerRef extracts the story id embedded in a blocker description as
// the first "#"-prefixed run of digits, e.g. "Blocked by #42 pending review"
// yields 42. The convention comes from the source system's free-text blocking
// notes; a description without a reference yields ok=false.
func ParseBlockerRef(text string) (int64, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == i+1 {
			continue
		}
		id, err := strconv.ParseInt(text[i+1:j], 10, 64)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}
