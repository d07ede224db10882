// Package catalog holds the directorate catalog: forms, sub-units, spreadsheet
// layouts and carry-forward rulesets. The catalog is loaded once at startup and
// is read-only afterwards.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FieldKind is the value kind accepted by a form field
type FieldKind string

const (
	KindNumber FieldKind = "number"
	KindText   FieldKind = "text"
	KindDate   FieldKind = "date"
)

// IsValid reports whether k is a known field kind
func (k FieldKind) IsValid() bool {
	switch k {
	case KindNumber, KindText, KindDate:
		return true
	}
	return false
}

// Field describes one form input. Computed fields are derived, never typed by users.
type Field struct {
	ID       string    `yaml:"id"`
	Label    string    `yaml:"label"`
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required"`
	Computed bool      `yaml:"computed"`
}

type Section struct {
	ID     string  `yaml:"id"`
	Title  string  `yaml:"title"`
	Fields []Field `yaml:"fields"`
}

// FormDefinition is an ordered list of sections. Field order defines mirror row order.
type FormDefinition struct {
	Sections []Section `yaml:"sections"`
}

// Fields returns every field in form order
func (f FormDefinition) Fields() []Field {
	var out []Field
	for _, s := range f.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

// Block is a contiguous vertical run of rows in the mirror.
// Section and Fields narrow the block to part of the form; with neither set the block covers the whole form.
type Block struct {
	SheetName string   `yaml:"sheetName,omitempty"`
	StartRow  int      `yaml:"startRow"`
	EndRow    *int     `yaml:"endRow,omitempty"`
	Section   string   `yaml:"section,omitempty"`
	Fields    []string `yaml:"fields,omitempty"`
}

// Capacity returns the number of rows available, or -1 for an unbounded block
func (b Block) Capacity() int {
	if b.EndRow == nil {
		return -1
	}
	return *b.EndRow - b.StartRow + 1
}

// SheetConfig points at the external spreadsheet mirroring a directorate or unit
type SheetConfig struct {
	SpreadsheetID string  `yaml:"spreadsheetId"`
	SheetName     string  `yaml:"sheetName"`
	Blocks        []Block `yaml:"blocks"`
}

// TabFor returns the tab a block writes to
func (c SheetConfig) TabFor(b Block) string {
	if b.SheetName != "" {
		return b.SheetName
	}
	return c.SheetName
}

// CarryForwardRule derives Initial = Final - Exits from the prior period
type CarryForwardRule struct {
	Final   string `yaml:"final"`
	Exits   string `yaml:"exits,omitempty"`
	Initial string `yaml:"initial"`
}

// Directorate is one organizational grouping with its own form and mirror layout
type Directorate struct {
	ID         string                  `yaml:"id"`
	Name       string                  `yaml:"name"`
	Units      []string                `yaml:"units,omitempty"`
	Rulesets   []string                `yaml:"rulesets,omitempty"`
	Daily      bool                    `yaml:"daily,omitempty"`
	Form       FormDefinition          `yaml:"form"`
	Sheet      *SheetConfig            `yaml:"sheet,omitempty"`
	UnitSheets map[string]*SheetConfig `yaml:"unitSheets,omitempty"`

	fields map[string]Field
}

// HasUnits reports whether the directorate is split into sub-units
func (d *Directorate) HasUnits() bool {
	return len(d.Units) > 0
}

// HasUnit reports whether unit is one of the directorate's sub-units
func (d *Directorate) HasUnit(unit string) bool {
	for _, u := range d.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// Field looks up a form field by id
func (d *Directorate) Field(id string) (Field, bool) {
	if d.fields == nil {
		d.index()
	}
	f, ok := d.fields[id]
	return f, ok
}

// SheetFor returns the mirror target for a record: the unit sheet for unit
// records and the directorate sheet for directorate-level records.
func (d *Directorate) SheetFor(unit string) *SheetConfig {
	if unit == "" {
		return d.Sheet
	}
	return d.UnitSheets[unit]
}

// BlockFields returns the fields a block covers, in form order
func (d *Directorate) BlockFields(b Block) []Field {
	var selected map[string]struct{}
	if len(b.Fields) > 0 {
		selected = make(map[string]struct{}, len(b.Fields))
		for _, id := range b.Fields {
			selected[id] = struct{}{}
		}
	}

	var out []Field
	for _, s := range d.Form.Sections {
		if b.Section != "" && s.ID != b.Section {
			continue
		}
		for _, f := range s.Fields {
			if selected != nil {
				if _, ok := selected[f.ID]; !ok {
					continue
				}
			}
			out = append(out, f)
		}
	}
	return out
}

func (d *Directorate) index() {
	d.fields = make(map[string]Field)
	for _, f := range d.Form.Fields() {
		d.fields[f.ID] = f
	}
}

// Catalog is the immutable set of directorates and the rulesets they reference
type Catalog struct {
	Rulesets     map[string][]CarryForwardRule `yaml:"rulesets"`
	Directorates []*Directorate                `yaml:"directorates"`

	byID map[string]*Directorate
}

// Load reads and validates a catalog file
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document
func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

// New builds a catalog from already constructed directorates
func New(rulesets map[string][]CarryForwardRule, directorates ...*Directorate) (*Catalog, error) {
	c := &Catalog{Rulesets: rulesets, Directorates: directorates}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return c, nil
}

func (c *Catalog) normalize() {
	if c.Rulesets == nil {
		c.Rulesets = map[string][]CarryForwardRule{}
	}
	for _, d := range c.Directorates {
		if d == nil {
			continue
		}
		for si := range d.Form.Sections {
			for fi := range d.Form.Sections[si].Fields {
				if d.Form.Sections[si].Fields[fi].Kind == "" {
					d.Form.Sections[si].Fields[fi].Kind = KindNumber
				}
			}
		}
	}
}

func (c *Catalog) index() {
	c.byID = make(map[string]*Directorate, len(c.Directorates))
	for _, d := range c.Directorates {
		d.index()
		c.byID[d.ID] = d
	}
}

// Directorate looks up a directorate by id
func (c *Catalog) Directorate(id string) (*Directorate, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// List returns every directorate ordered by id
func (c *Catalog) List() []*Directorate {
	out := make([]*Directorate, len(c.Directorates))
	copy(out, c.Directorates)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RulesFor returns the carry-forward rules of every ruleset the directorate uses
func (c *Catalog) RulesFor(d *Directorate) []CarryForwardRule {
	var out []CarryForwardRule
	for _, name := range d.Rulesets {
		out = append(out, c.Rulesets[name]...)
	}
	return out
}
