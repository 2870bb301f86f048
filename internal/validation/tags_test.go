package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"Empty", "", []string{}, false},
		{"Empty List", "[]", []string{}, false},
		{"Single Quoted", "['SF', 'Manga']", []string{"sf", "manga"}, false},
		{"Double Quoted", `["Poetry", "Drama"]`, []string{"poetry", "drama"}, false},
		{"Tuple", "('a', 'b')", []string{"a", "b"}, false},
		{"Mixed Scalars", "['a', 3, True]", []string{"a", "3", "true"}, false},
		{"Escaped Quote", `['it\'s']`, []string{"it's"}, false},
		{"Comma Inside Quotes", "['a, b', 'c']", []string{"a, b", "c"}, false},
		{"Trailing Comma", "['a',]", []string{"a"}, false},
		{"Duplicates Folded", "['A', 'a']", []string{"a"}, false},
		{"Not A List", "sf, manga", nil, true},
		{"Unterminated", "['a", nil, true},
		{"Adjacent Strings", "['a' 'b']", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTags(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got, err := NormalizeTags([]string{" Fantasy ", "fantasy", "BD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fantasy", "bd"}, got)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "science-fiction", Slugify("Science Fiction"))
	assert.Equal(t, "poesie", Slugify("Poésie"))
	assert.Equal(t, "bande-dessinee", Slugify("Bande  Dessinée!"))
	assert.Equal(t, "sci-fi-fantasy", Slugify("Sci-Fi/Fantasy"))
}
