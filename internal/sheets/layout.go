package sheets

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/straye-as/indicator-api/internal/catalog"
)

// LabelColumn holds row labels; month columns start right after it
const LabelColumn = "A"

// ColumnForMonth maps month 1..12 to columns B..M
func ColumnForMonth(month int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("month %d outside 1-12", month)
	}
	return string(rune('B' + month - 1)), nil
}

// CellRange builds an A1 range for a vertical run in one column
func CellRange(sheetName, column string, startRow, count int) string {
	end := startRow + count - 1
	if end < startRow {
		end = startRow
	}
	return fmt.Sprintf("%s!%s%d:%s%d", quoteSheetName(sheetName), column, startRow, column, end)
}

func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Target is one resolved block of a sheet configuration
type Target struct {
	SpreadsheetID string
	SheetName     string
	StartRow      int
	EndRow        *int
	BlockIndex    int
}

// Targets resolves every block of a sheet configuration, in declaration order
func Targets(cfg *catalog.SheetConfig) []Target {
	if cfg == nil {
		return nil
	}
	out := make([]Target, 0, len(cfg.Blocks))
	for i, b := range cfg.Blocks {
		out = append(out, Target{
			SpreadsheetID: cfg.SpreadsheetID,
			SheetName:     cfg.TabFor(b),
			StartRow:      b.StartRow,
			EndRow:        b.EndRow,
			BlockIndex:    i,
		})
	}
	return out
}

// OrderedBlockValues returns the block's field values in form order.
// Missing fields become empty cells; metadata keys never reach the mirror.
func OrderedBlockValues(d *catalog.Directorate, block catalog.Block, data map[string]any) []any {
	fields := d.BlockFields(block)
	values := make([]any, 0, len(fields))
	for _, f := range fields {
		values = append(values, cellValue(data[f.ID]))
	}
	return values
}

// Row is one labeled mirror row
type Row struct {
	FieldID string
	Label   string
}

// BlockRows returns the labeled rows of a block in form order
func BlockRows(d *catalog.Directorate, block catalog.Block) []Row {
	fields := d.BlockFields(block)
	rows := make([]Row, 0, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.ID
		}
		rows = append(rows, Row{FieldID: f.ID, Label: label})
	}
	return rows
}

func cellValue(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}
