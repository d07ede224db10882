package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCatalog = `
rulesets:
  followup:
    - final: f_final
      exits: f_exits
      initial: f_initial
directorates:
  - id: dir-a
    name: Directorate A
    units: [north, south]
    rulesets: [followup]
    form:
      sections:
        - id: s1
          title: One
          fields:
            - id: f_initial
              label: Initial
              computed: true
            - id: f_exits
              label: Exits
            - id: f_final
              label: Final
        - id: s2
          title: Two
          fields:
            - id: comment
              label: Comment
              kind: text
    sheet:
      spreadsheetId: sheet-a
      sheetName: Main
      blocks:
        - startRow: 2
          endRow: 4
          section: s1
        - sheetName: Comments
          startRow: 10
          section: s2
    unitSheets:
      north:
        spreadsheetId: sheet-a
        sheetName: North
        blocks:
          - startRow: 2
            fields: [f_final, f_initial]
  - id: dir-b
    name: Directorate B
    form:
      sections:
        - id: only
          fields:
            - id: count
              label: Count
`

func TestParse_ValidCatalog(t *testing.T) {
	c, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)

	d, ok := c.Directorate("dir-a")
	require.True(t, ok)
	assert.True(t, d.HasUnits())
	assert.True(t, d.HasUnit("north"))
	assert.False(t, d.HasUnit("west"))

	f, ok := d.Field("f_exits")
	require.True(t, ok)
	assert.Equal(t, catalog.KindNumber, f.Kind, "kind defaults to number")

	rules := c.RulesFor(d)
	require.Len(t, rules, 1)
	assert.Equal(t, "f_initial", rules[0].Initial)

	_, ok = c.Directorate("missing")
	assert.False(t, ok)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "dir-a", list[0].ID)
	assert.Equal(t, "dir-b", list[1].ID)
}

func TestDirectorate_SheetFor(t *testing.T) {
	c, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)
	d, _ := c.Directorate("dir-a")

	assert.Equal(t, "Main", d.SheetFor("").SheetName)
	assert.Equal(t, "North", d.SheetFor("north").SheetName)
	assert.Nil(t, d.SheetFor("south"))
}

func TestDirectorate_BlockFields(t *testing.T) {
	c, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)
	d, _ := c.Directorate("dir-a")

	ids := func(fields []catalog.Field) []string {
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			out = append(out, f.ID)
		}
		return out
	}

	assert.Equal(t, []string{"f_initial", "f_exits", "f_final"}, ids(d.BlockFields(d.Sheet.Blocks[0])))
	assert.Equal(t, []string{"comment"}, ids(d.BlockFields(d.Sheet.Blocks[1])))
	assert.Equal(t, "Comments", d.Sheet.TabFor(d.Sheet.Blocks[1]))
	// explicit field lists still follow form order
	assert.Equal(t, []string{"f_initial", "f_final"}, ids(d.BlockFields(d.UnitSheets["north"].Blocks[0])))
	assert.Equal(t, []string{"f_initial", "f_exits", "f_final", "comment"}, ids(d.BlockFields(catalog.Block{StartRow: 1})))
}

func TestParse_RejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "duplicate field id across sections",
			doc: `
directorates:
  - id: d
    form:
      sections:
        - id: a
          fields: [{id: x}]
        - id: b
          fields: [{id: x}]
`,
			wantErr: `field id "x" declared more than once`,
		},
		{
			name: "computed field marked required",
			doc: `
directorates:
  - id: d
    form:
      sections:
        - id: a
          fields: [{id: x, computed: true, required: true}]
`,
			wantErr: `computed field "x" cannot be required`,
		},
		{
			name: "block too small for its fields",
			doc: `
directorates:
  - id: d
    form:
      sections:
        - id: a
          fields: [{id: x}, {id: y}, {id: z}]
    sheet:
      spreadsheetId: s
      sheetName: t
      blocks: [{startRow: 5, endRow: 6}]
`,
			wantErr: "3 fields do not fit rows 5-6",
		},
		{
			name: "unknown ruleset",
			doc: `
directorates:
  - id: d
    rulesets: [missing]
    form:
      sections:
        - id: a
          fields: [{id: x}]
`,
			wantErr: `unknown ruleset "missing"`,
		},
		{
			name: "ruleset references unknown field",
			doc: `
rulesets:
  r:
    - {final: nope, initial: x}
directorates:
  - id: d
    rulesets: [r]
    form:
      sections:
        - id: a
          fields: [{id: x}]
`,
			wantErr: `references unknown field "nope"`,
		},
		{
			name: "unit sheet for unknown unit",
			doc: `
directorates:
  - id: d
    units: [a]
    form:
      sections:
        - id: s
          fields: [{id: x}]
    unitSheets:
      b:
        spreadsheetId: s
        sheetName: t
        blocks: [{startRow: 1}]
`,
			wantErr: `unit sheet for unknown unit "b"`,
		},
		{
			name: "duplicate directorate",
			doc: `
directorates:
  - id: d
    form: {sections: [{id: s, fields: [{id: x}]}]}
  - id: d
    form: {sections: [{id: s, fields: [{id: x}]}]}
`,
			wantErr: `directorate "d": duplicate id`,
		},
		{
			name: "metadata style field id",
			doc: `
directorates:
  - id: d
    form: {sections: [{id: s, fields: [{id: _hidden}]}]}
`,
			wantErr: "must not start with an underscore",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_BundledCatalog(t *testing.T) {
	c, err := catalog.Load("../../config/directorates.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, c.List())

	_, err = catalog.Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestField_CheckValue(t *testing.T) {
	number := catalog.Field{ID: "n", Kind: catalog.KindNumber}
	text := catalog.Field{ID: "t", Kind: catalog.KindText}
	date := catalog.Field{ID: "d", Kind: catalog.KindDate}

	tests := []struct {
		name    string
		field   catalog.Field
		value   any
		wantErr bool
	}{
		{"number accepts float", number, 3.5, false},
		{"number accepts json number", number, json.Number("12"), false},
		{"number accepts numeric string", number, "12", false},
		{"number accepts empty", number, "", false},
		{"number accepts nil", number, nil, false},
		{"number rejects text", number, "twelve", true},
		{"number rejects list", number, []any{1}, true},
		{"text accepts string", text, "hello", false},
		{"text accepts number", text, 4.0, false},
		{"text rejects bool", text, true, true},
		{"date accepts iso date", date, "2024-05-01", false},
		{"date rejects other layouts", date, "01.05.2024", true},
		{"date rejects number", date, 20240501.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.field.CheckValue(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
