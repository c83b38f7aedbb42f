package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowline/runtime/pkg/flowline/event"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		name, pattern string
		want          bool
	}{
		{"a:b", "a:b", true},
		{"a:c", "a:b", false},
		{"a:b", "a:*", true},
		{"a:anything", "a:*", true},
		{"x:anything", "a:*", false},
		{"a:b", "*:b", true},
		{"x:b", "*:b", true},
		{"x:c", "*:b", false},
		{"", "*", true},
		{"anything:at:all", "*", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, event.Matches(c.name, c.pattern), "name=%q pattern=%q", c.name, c.pattern)
	}
}

func TestFindMatchingPatterns_PreservesOrder(t *testing.T) {
	patterns := []string{"x:*", "a:b", "*:c", "unrelated:d"}
	got := event.FindMatchingPatterns("a:b", patterns)
	assert.Equal(t, []string{"a:b"}, got)

	got = event.FindMatchingPatterns("x:anything", patterns)
	assert.Equal(t, []string{"x:*"}, got)

	got = event.FindMatchingPatterns("x:c", patterns)
	assert.Equal(t, []string{"x:*", "*:c"}, got)
}

func TestFindMatchingPatterns_EqualsFilter(t *testing.T) {
	patterns := []string{"a:*", "*:b", "c:d", "*"}
	name := "a:b"

	var want []string
	for _, p := range patterns {
		if event.Matches(name, p) {
			want = append(want, p)
		}
	}
	assert.Equal(t, want, event.FindMatchingPatterns(name, patterns))
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, event.MatchesAny("a:b", []string{"x:y", "a:b"}))
	assert.False(t, event.MatchesAny("a:b", []string{"x:y", "z:w"}))
}
