package ledger

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultLayout []byte

const (
	// Discord caps an embed at 25 fields and a select menu at 25 options.
	maxRows       = 25
	maxCategories = 25

	sectionName = "\u200b"
	zeroValue   = "0"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Category is one tracked quantity. FieldIndex is its position in the
// display embed and FieldName the field's name there, which may carry an
// icon that Name does not.
type Category struct {
	Key        string
	Name       string
	FieldName  string
	Icon       string
	FieldIndex int
	Highlight  bool
}

// Label is the text shown in the picker and the modal title.
func (c Category) Label() string {
	if c.Icon == "" {
		return c.Name
	}
	return c.Icon + " " + c.Name
}

type layoutDoc struct {
	Title  string      `yaml:"title"`
	Color  string      `yaml:"color"`
	Accent string      `yaml:"accent"`
	Rows   []layoutRow `yaml:"rows"`
}

type layoutRow struct {
	Section   string `yaml:"section"`
	Key       string `yaml:"key"`
	Name      string `yaml:"name"`
	Field     string `yaml:"field"` // display field name, defaults to name
	Icon      string `yaml:"icon"`
	Highlight bool   `yaml:"highlight"`
}

// Registry is the closed set of categories plus the display layout they
// are rendered into. It is read-only after LoadRegistry returns.
type Registry struct {
	title     string
	color     int
	accent    string
	rows      []layoutRow
	ordered   []Category
	byKey     map[string]Category
	highlight map[string]struct{}
}

// DefaultRegistry returns the built-in layout.
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(defaultLayout)
	if err != nil {
		panic(fmt.Sprintf("ledger: embedded layout is invalid: %v", err))
	}
	return reg
}

func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category layout: %w", err)
	}
	reg, err := LoadRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

func LoadRegistry(data []byte) (*Registry, error) {
	var doc layoutDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse category layout: %w", err)
	}

	color, err := parseColor(doc.Color)
	if err != nil {
		return nil, err
	}
	if len(doc.Rows) > maxRows {
		return nil, fmt.Errorf("layout has %d rows, at most %d allowed", len(doc.Rows), maxRows)
	}

	reg := &Registry{
		title:     strings.TrimSpace(doc.Title),
		color:     color,
		accent:    strings.TrimSpace(doc.Accent),
		rows:      doc.Rows,
		byKey:     make(map[string]Category),
		highlight: make(map[string]struct{}),
	}
	if reg.title == "" {
		return nil, errors.New("layout title is empty")
	}

	fieldNames := make(map[string]struct{})
	for i, row := range doc.Rows {
		if row.Key == "" {
			if strings.TrimSpace(row.Section) == "" {
				return nil, fmt.Errorf("row %d: neither a section nor a category", i)
			}
			continue
		}
		if row.Section != "" {
			return nil, fmt.Errorf("row %d: both section and key set", i)
		}
		if !keyPattern.MatchString(row.Key) {
			return nil, fmt.Errorf("row %d: invalid key %q", i, row.Key)
		}
		if _, dup := reg.byKey[row.Key]; dup {
			return nil, fmt.Errorf("row %d: duplicate key %q", i, row.Key)
		}
		name := strings.TrimSpace(row.Name)
		if name == "" {
			return nil, fmt.Errorf("row %d: category %q has no name", i, row.Key)
		}

		field := strings.TrimSpace(row.Field)
		if field == "" {
			field = name
		}
		if _, dup := fieldNames[field]; dup {
			return nil, fmt.Errorf("row %d: duplicate field name %q", i, field)
		}
		fieldNames[field] = struct{}{}

		cat := Category{
			Key:        row.Key,
			Name:       name,
			FieldName:  field,
			Icon:       strings.TrimSpace(row.Icon),
			FieldIndex: i,
			Highlight:  row.Highlight,
		}
		reg.byKey[cat.Key] = cat
		reg.ordered = append(reg.ordered, cat)
		if cat.Highlight {
			reg.highlight[cat.FieldName] = struct{}{}
		}
	}

	switch n := len(reg.ordered); {
	case n == 0:
		return nil, errors.New("layout has no categories")
	case n > maxCategories:
		return nil, fmt.Errorf("layout has %d categories, at most %d allowed", n, maxCategories)
	}
	return reg, nil
}

func parseColor(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil || len(s) != 6 {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v), nil
}

func (r *Registry) Resolve(key string) (Category, error) {
	cat, ok := r.byKey[key]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	return cat, nil
}

// Categories returns the categories in display order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Title() string  { return r.title }
func (r *Registry) Color() int     { return r.color }
func (r *Registry) Accent() string { return r.accent }

func (r *Registry) Highlighted(name string) bool {
	_, ok := r.highlight[name]
	return ok
}

// InitialSnapshot is a freshly created ledger: every quantity zero and
// section headers as full-width blank-named fields.
func (r *Registry) InitialSnapshot() Snapshot {
	fields := make([]Field, len(r.rows))
	for i, row := range r.rows {
		if row.Key == "" {
			fields[i] = Field{Name: sectionName, Value: row.Section}
			continue
		}
		fields[i] = Field{Name: r.byKey[row.Key].FieldName, Value: zeroValue, Inline: true}
	}
	return Snapshot{Title: r.title, Color: r.color, Fields: fields}
}

// Codec returns the display codec bound to this registry's highlight set.
func (r *Registry) Codec() *Codec {
	return &Codec{accent: r.accent, highlighted: r.Highlighted}
}
