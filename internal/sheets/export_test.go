package sheets

import "context"

// LockWorkbook takes the write lock of a workbook the way WriteColumn does
func (b *WorkbookBackend) LockWorkbook(ctx context.Context, spreadsheetID string) (func(), error) {
	return b.locks.Lock(ctx, b.ObjectName(spreadsheetID))
}
