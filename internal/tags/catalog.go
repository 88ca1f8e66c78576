// Package tags holds the static mood tag catalog.
//
// The catalog is configuration, not user data: it is loaded once at start-up
// from the embedded catalog.yaml (or an override file) and validated before
// any component sees it. Entries may still reference ids the catalog does not
// know; views drop those at render time.
package tags

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Tag is one catalog entry.
type Tag struct {
	ID       string   `koanf:"id" json:"id"`
	Name     string   `koanf:"name" json:"name"`
	Category Category `koanf:"category" json:"category"`
	Color    string   `koanf:"color" json:"color"`
	Hidden   bool     `koanf:"hidden" json:"hidden,omitempty"`
}

// Catalog is an immutable, validated tag catalog.
type Catalog struct {
	sentinel string
	ordered  []Tag
	byID     map[string]Tag
}

type rawCatalog struct {
	Sentinel string `koanf:"sentinel"`
	Tags     []struct {
		ID       string `koanf:"id"`
		Name     string `koanf:"name"`
		Category string `koanf:"category"`
		Color    string `koanf:"color"`
		Hidden   bool   `koanf:"hidden"`
	} `koanf:"tags"`
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	content := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tag catalog %s: %w", path, err)
		}
		content = b
	}
	return Parse(content)
}

// Parse decodes and validates a YAML catalog document.
func Parse(content []byte) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse tag catalog: %w", err)
	}
	var raw rawCatalog
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode tag catalog: %w", err)
	}

	c := &Catalog{sentinel: raw.Sentinel, byID: make(map[string]Tag, len(raw.Tags))}
	for i, rt := range raw.Tags {
		if rt.ID == "" {
			return nil, fmt.Errorf("tag #%d: id is required", i)
		}
		if rt.Name == "" || rt.Color == "" {
			return nil, fmt.Errorf("tag %q: name and color are required", rt.ID)
		}
		cat, err := ParseCategory(rt.Category)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", rt.ID, err)
		}
		if _, dup := c.byID[rt.ID]; dup {
			return nil, fmt.Errorf("tag %q: duplicate id", rt.ID)
		}
		t := Tag{ID: rt.ID, Name: rt.Name, Category: cat, Color: rt.Color, Hidden: rt.Hidden}
		c.byID[t.ID] = t
		c.ordered = append(c.ordered, t)
	}
	if c.sentinel == "" {
		return nil, fmt.Errorf("tag catalog: sentinel is required")
	}
	if _, ok := c.byID[c.sentinel]; !ok {
		return nil, fmt.Errorf("tag catalog: sentinel %q is not a catalog tag", c.sentinel)
	}
	return c, nil
}

// MustDefault returns the embedded catalog and panics if it is invalid.
func MustDefault() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Sentinel is the tag substituted when classification yields nothing.
func (c *Catalog) Sentinel() string { return c.sentinel }

// Lookup resolves a tag id.
func (c *Catalog) Lookup(id string) (Tag, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Known reports whether id resolves to a catalog tag (hidden ones included).
func (c *Catalog) Known(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Selectable reports whether id may be picked manually.
func (c *Catalog) Selectable(id string) bool {
	t, ok := c.byID[id]
	return ok && !t.Hidden
}

// All returns every tag in catalog order.
func (c *Catalog) All() []Tag {
	out := make([]Tag, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Palette returns the selectable tags in catalog order.
func (c *Catalog) Palette() []Tag {
	out := make([]Tag, 0, len(c.ordered))
	for _, t := range c.ordered {
		if !t.Hidden {
			out = append(out, t)
		}
	}
	return out
}

// Resolve maps ids to tags, dropping unknown ids and duplicates.
func (c *Catalog) Resolve(ids []string) []Tag {
	out := make([]Tag, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t, ok := c.byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}

// KnownIDs keeps the ids that resolve, in order, without duplicates.
func (c *Catalog) KnownIDs(ids []string) []string {
	resolved := c.Resolve(ids)
	out := make([]string, len(resolved))
	for i, t := range resolved {
		out[i] = t.ID
	}
	return out
}

// AnyInCategory reports whether one of ids resolves to a tag of category cat.
func (c *Catalog) AnyInCategory(ids []string, cat Category) bool {
	for _, id := range ids {
		if t, ok := c.byID[id]; ok && t.Category == cat {
			return true
		}
	}
	return false
}
