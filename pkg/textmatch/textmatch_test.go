package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Dungeon Crawler Carl", "dungeon crawler carl"},
		{"  The Wheel  of Time!  ", "the wheel of time"},
		{"Mother of Learning: ARC 1", "mother of learning arc 1"},
		{"He Who Fights with Monsters #3", "he who fights with monsters 3"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wandering inn", NormalizeTitle("The Wandering Inn"))
	assert.Equal(t, "tale of two cities", NormalizeTitle("A Tale of Two Cities"))
	assert.Equal(t, "unwanted guest", NormalizeTitle("An Unwanted Guest"))
	// Only a leading article is stripped, and only once.
	assert.Equal(t, "an the a", NormalizeTitle("The An The A"))
	assert.Equal(t, "theory of everything", NormalizeTitle("Theory of Everything"))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("cradle", "cradle"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("cradle", ""))
	assert.Greater(t, Similarity("dungeon crawler carl", "dungeon crawler karl"), 0.9)
	assert.Less(t, Similarity("cradle", "the wandering inn"), 0.6)
}

func TestTitlesMatch(t *testing.T) {
	t.Parallel()

	assert.True(t, TitlesMatch("The Wandering Inn", "Wandering Inn", 0.85))
	assert.True(t, TitlesMatch("Unsouled", "unsouled!", 0.85))
	assert.False(t, TitlesMatch("Unsouled", "Soulsmith", 0.85))
}
