package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgeGroup_Boundaries(t *testing.T) {
	tests := []struct {
		age   int64
		label string
		ok    bool
	}{
		{-1, "", false},
		{0, "Child", true},
		{12, "Child", true},
		{13, "Teen", true},
		{18, "Teen", true},
		{19, "Young Adult", true},
		{30, "Young Adult", true},
		{31, "Adult", true},
		{50, "Adult", true},
		{51, "Middle Age", true},
		{70, "Middle Age", true},
		{71, "Senior", true},
		{100, "Senior", true},
		{101, "", false},
	}

	for _, tt := range tests {
		label, ok := AgeGroup(tt.age)
		assert.Equal(t, tt.ok, ok, "age %d", tt.age)
		assert.Equal(t, tt.label, label, "age %d", tt.age)
	}
}

func TestAgeGroup_Monotonic(t *testing.T) {
	order := make(map[string]int)
	for i, bin := range AgeBins {
		order[bin.Label] = i
	}

	prev := -1
	for age := int64(0); age <= 100; age++ {
		label, ok := AgeGroup(age)
		assert.True(t, ok)
		idx, known := order[label]
		assert.True(t, known)
		assert.GreaterOrEqual(t, idx, prev, "age %d", age)
		prev = idx
	}
}

func TestParseIncidentTime(t *testing.T) {
	ts, ok := ParseIncidentTime("03/01/2020 01:30:00 PM")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2020, 3, 1, 13, 30, 0, 0, time.UTC), ts)

	ts, ok = ParseIncidentTime("2020-03-01 13:30:00")
	assert.True(t, ok)
	assert.Equal(t, 13, ts.Hour())

	for _, bad := range []string{"", "  ", "2020/03/01", "13/45/2020 01:00:00 AM"} {
		_, ok := ParseIncidentTime(bad)
		assert.False(t, ok, bad)
	}
}

func TestDelayDays(t *testing.T) {
	occ := time.Date(2020, 3, 3, 0, 0, 0, 0, time.UTC)

	days, ok := DelayDays(occ, occ.Add(36*time.Hour))
	assert.True(t, ok)
	assert.Equal(t, int64(1), days)

	_, ok = DelayDays(occ, occ.AddDate(0, 0, -2))
	assert.False(t, ok)

	_, ok = DelayDays(occ, occ.Add(-time.Hour))
	assert.False(t, ok)
}
