// Package catalog holds the static list of focus techniques that the
// suggestion engine draws from. A catalog is loaded once and never mutated.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed techniques.yaml
var defaultCatalog []byte

type Category string

const (
	CategoryShort       Category = "short"
	CategoryLong        Category = "long"
	CategoryGeneral     Category = "general"
	CategoryDistraction Category = "distraction"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryShort, CategoryLong, CategoryGeneral, CategoryDistraction:
		return true
	}
	return false
}

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

type Technique struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Category    Category `yaml:"category" json:"category"`
	Level       Level    `yaml:"level" json:"level"`
}

type Catalog struct {
	techniques []Technique
	index      map[string]int
}

type catalogFile struct {
	Techniques []Technique `yaml:"techniques"`
}

var ErrInvalidCatalog = errors.New("invalid technique catalog")

// Parse decodes a YAML catalog and validates every entry.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(f.Techniques)
}

// New builds a catalog from an in-memory list. An empty list is valid.
func New(techniques []Technique) (*Catalog, error) {
	c := &Catalog{
		techniques: make([]Technique, 0, len(techniques)),
		index:      make(map[string]int, len(techniques)),
	}
	for i, t := range techniques {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidCatalog, i)
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate technique %q", ErrInvalidCatalog, t.Name)
		}
		if !t.Category.Valid() {
			return nil, fmt.Errorf("%w: technique %q has unknown category %q", ErrInvalidCatalog, t.Name, t.Category)
		}
		if !t.Level.Valid() {
			return nil, fmt.Errorf("%w: technique %q has unknown level %q", ErrInvalidCatalog, t.Name, t.Level)
		}
		c.index[t.Name] = len(c.techniques)
		c.techniques = append(c.techniques, t)
	}
	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func (c *Catalog) Len() int { return len(c.techniques) }

// All returns a copy of every technique in file order.
func (c *Catalog) All() []Technique {
	out := make([]Technique, len(c.techniques))
	copy(out, c.techniques)
	return out
}

func (c *Catalog) Lookup(name string) (Technique, bool) {
	i, ok := c.index[name]
	if !ok {
		return Technique{}, false
	}
	return c.techniques[i], true
}

func (c *Catalog) ByCategory(cat Category) []Technique {
	return c.filter(func(t Technique) bool { return t.Category == cat })
}

func (c *Catalog) ByLevel(l Level) []Technique {
	return c.filter(func(t Technique) bool { return t.Level == l })
}

// Filter returns the techniques matching both cat and l. An empty cat or l
// matches anything. The result is never nil.
func (c *Catalog) Filter(cat Category, l Level) []Technique {
	out := c.filter(func(t Technique) bool {
		return (cat == "" || t.Category == cat) && (l == "" || t.Level == l)
	})
	if out == nil {
		out = []Technique{}
	}
	return out
}

func (c *Catalog) filter(keep func(Technique) bool) []Technique {
	var out []Technique
	for _, t := range c.techniques {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Names is a convenience for log lines and wire payloads.
func Names(ts []Technique) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}
