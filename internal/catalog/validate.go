package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/straye-as/indicator-api/internal/domain"
)

// Validate checks the structural invariants of the catalog and returns every violation found
func (c *Catalog) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Directorates))

	for name, rules := range c.Rulesets {
		for i, r := range rules {
			if r.Final == "" || r.Initial == "" {
				errs = append(errs, fmt.Errorf("ruleset %q rule %d: final and initial are required", name, i))
			}
		}
	}

	for i, d := range c.Directorates {
		if d == nil {
			errs = append(errs, fmt.Errorf("directorate %d: empty entry", i))
			continue
		}
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("directorate %d: id is required", i))
			continue
		}
		if _, dup := seen[d.ID]; dup {
			errs = append(errs, fmt.Errorf("directorate %q: duplicate id", d.ID))
		}
		seen[d.ID] = struct{}{}
		errs = append(errs, c.validateDirectorate(d)...)
	}

	return errors.Join(errs...)
}

func (c *Catalog) validateDirectorate(d *Directorate) []error {
	var errs []error
	prefix := fmt.Sprintf("directorate %q", d.ID)

	units := make(map[string]struct{}, len(d.Units))
	for _, u := range d.Units {
		if u == "" {
			errs = append(errs, fmt.Errorf("%s: unit names must not be empty", prefix))
			continue
		}
		if _, dup := units[u]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate unit %q", prefix, u))
		}
		units[u] = struct{}{}
	}

	fields := make(map[string]Field)
	sections := make(map[string]struct{})
	for _, s := range d.Form.Sections {
		if s.ID != "" {
			sections[s.ID] = struct{}{}
		}
		for _, f := range s.Fields {
			switch {
			case f.ID == "":
				errs = append(errs, fmt.Errorf("%s section %q: field id is required", prefix, s.ID))
				continue
			case domain.IsMetadataKey(f.ID):
				errs = append(errs, fmt.Errorf("%s: field %q must not start with an underscore", prefix, f.ID))
			case !f.Kind.IsValid():
				errs = append(errs, fmt.Errorf("%s: field %q has unknown kind %q", prefix, f.ID, f.Kind))
			}
			if _, dup := fields[f.ID]; dup {
				errs = append(errs, fmt.Errorf("%s: field id %q declared more than once", prefix, f.ID))
			}
			if f.Computed && f.Required {
				errs = append(errs, fmt.Errorf("%s: computed field %q cannot be required", prefix, f.ID))
			}
			fields[f.ID] = f
		}
	}

	for _, name := range d.Rulesets {
		rules, ok := c.Rulesets[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown ruleset %q", prefix, name))
			continue
		}
		for _, r := range rules {
			for _, ref := range []string{r.Final, r.Exits, r.Initial} {
				if ref == "" {
					continue
				}
				if _, ok := fields[ref]; !ok {
					errs = append(errs, fmt.Errorf("%s: ruleset %q references unknown field %q", prefix, name, ref))
				}
			}
		}
	}

	if d.Sheet != nil {
		errs = append(errs, validateSheet(d, prefix+" sheet", d.Sheet, fields, sections)...)
	}
	for unit, sheet := range d.UnitSheets {
		if _, ok := units[unit]; !ok {
			errs = append(errs, fmt.Errorf("%s: unit sheet for unknown unit %q", prefix, unit))
		}
		if sheet == nil {
			continue
		}
		errs = append(errs, validateSheet(d, fmt.Sprintf("%s unit sheet %q", prefix, unit), sheet, fields, sections)...)
	}

	return errs
}

func validateSheet(d *Directorate, prefix string, cfg *SheetConfig, fields map[string]Field, sections map[string]struct{}) []error {
	var errs []error
	if cfg.SpreadsheetID == "" {
		errs = append(errs, fmt.Errorf("%s: spreadsheetId is required", prefix))
	}
	if len(cfg.Blocks) == 0 {
		errs = append(errs, fmt.Errorf("%s: at least one block is required", prefix))
	}
	for i, b := range cfg.Blocks {
		if cfg.TabFor(b) == "" {
			errs = append(errs, fmt.Errorf("%s block %d: sheetName is required", prefix, i))
		}
		if b.StartRow < 1 {
			errs = append(errs, fmt.Errorf("%s block %d: startRow must be at least 1", prefix, i))
		}
		if b.EndRow != nil && *b.EndRow < b.StartRow {
			errs = append(errs, fmt.Errorf("%s block %d: endRow %d is before startRow %d", prefix, i, *b.EndRow, b.StartRow))
		}
		if b.Section != "" {
			if _, ok := sections[b.Section]; !ok {
				errs = append(errs, fmt.Errorf("%s block %d: unknown section %q", prefix, i, b.Section))
			}
		}
		for _, id := range b.Fields {
			if _, ok := fields[id]; !ok {
				errs = append(errs, fmt.Errorf("%s block %d: unknown field %q", prefix, i, id))
			}
		}
		if capacity := b.Capacity(); capacity >= 0 {
			if n := len(d.BlockFields(b)); n > capacity {
				errs = append(errs, fmt.Errorf("%s block %d: %d fields do not fit rows %d-%d", prefix, i, n, b.StartRow, *b.EndRow))
			}
		}
	}
	return errs
}

// CheckValue reports whether v is acceptable for the field's kind.
// Empty values are accepted for every kind; required fields are checked separately.
func (f Field) CheckValue(v any) error {
	if !domain.IsScalar(v) {
		return fmt.Errorf("field %q: value must be a scalar", f.ID)
	}
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}

	switch f.Kind {
	case KindNumber:
		if _, ok := domain.ParseNumeric(v); !ok {
			return fmt.Errorf("field %q: expected a number", f.ID)
		}
	case KindDate:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected a date string", f.ID)
		}
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
			return fmt.Errorf("field %q: expected a date in YYYY-MM-DD format", f.ID)
		}
	case KindText:
		if _, ok := v.(bool); ok {
			return fmt.Errorf("field %q: expected text", f.ID)
		}
	}
	return nil
}

// IsEmptyValue reports whether v counts as missing for a required field
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
