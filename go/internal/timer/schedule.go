package timer

import (
	"sort"

	"github.com/mcdev12/pokerleague/go/internal/models"
)

// schedule is a session's blind levels ordered by level number.
type schedule []models.BlindLevel

func newSchedule(levels []models.BlindLevel) schedule {
	s := make(schedule, len(levels))
	copy(s, levels)
	sort.Slice(s, func(i, j int) bool { return s[i].Level < s[j].Level })
	return s
}

func (s schedule) level(n int) (models.BlindLevel, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Level >= n })
	if i < len(s) && s[i].Level == n {
		return s[i], true
	}
	return models.BlindLevel{}, false
}

// after returns the first scheduled level past n.
func (s schedule) after(n int) (models.BlindLevel, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Level > n })
	if i < len(s) {
		return s[i], true
	}
	return models.BlindLevel{}, false
}
