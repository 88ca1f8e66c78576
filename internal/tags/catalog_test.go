package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "other", c.Sentinel())
	assert.Len(t, c.All(), 14)

	other, ok := c.Lookup("other")
	require.True(t, ok)
	assert.True(t, other.Hidden)
	assert.False(t, c.Selectable("other"))
	assert.True(t, c.Known("other"))

	for _, tag := range c.Palette() {
		assert.False(t, tag.Hidden, "palette must not contain hidden tag %s", tag.ID)
		assert.True(t, tag.Category.Valid())
	}
	assert.Len(t, c.Palette(), 13)

	home, ok := c.Lookup("home")
	require.True(t, ok)
	assert.Equal(t, CategoryPlace, home.Category)
}

func TestResolveDropsUnknownAndDuplicates(t *testing.T) {
	c := MustDefault()
	got := c.KnownIDs([]string{"happy", "bogus", "exercise", "happy"})
	assert.Equal(t, []string{"happy", "exercise"}, got)
	assert.Empty(t, c.Resolve([]string{"nope"}))
}

func TestAnyInCategory(t *testing.T) {
	c := MustDefault()
	assert.True(t, c.AnyInCategory([]string{"bogus", "rest"}, CategoryActivity))
	assert.False(t, c.AnyInCategory([]string{"happy", "calm"}, CategoryPlace))
	assert.False(t, c.AnyInCategory(nil, CategoryEmotion))
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown category": `
sentinel: x
tags:
  - {id: x, name: X, category: weather, color: c}
`,
		"duplicate id": `
sentinel: x
tags:
  - {id: x, name: X, category: emotion, color: c}
  - {id: x, name: Y, category: activity, color: c}
`,
		"missing sentinel tag": `
sentinel: other
tags:
  - {id: x, name: X, category: emotion, color: c}
`,
		"missing color": `
sentinel: x
tags:
  - {id: x, name: X, category: emotion}
`,
		"missing id": `
sentinel: x
tags:
  - {name: X, category: emotion, color: c}
`,
	}
	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLegacyContextCategoryMapsToPlace(t *testing.T) {
	c, err := Parse([]byte(`
sentinel: x
tags:
  - {id: x, name: X, category: context, color: c}
`))
	require.NoError(t, err)
	tag, _ := c.Lookup("x")
	assert.Equal(t, CategoryPlace, tag.Category)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sentinel: meh
tags:
  - {id: meh, name: Meh, category: emotion, color: bg-slate-300, hidden: true}
  - {id: gym, name: Gym, category: place, color: bg-green-400}
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "meh", c.Sentinel())
	assert.Equal(t, []Tag{{ID: "gym", Name: "Gym", Category: CategoryPlace, Color: "bg-green-400"}}, c.Palette())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
