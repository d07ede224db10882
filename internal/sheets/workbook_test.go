package sheets_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/straye-as/indicator-api/internal/sheets"
	"github.com/straye-as/indicator-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func seedWorkbook(t *testing.T, store storage.Storage, name string, tabs ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, tab := range tabs {
		_, err := f.NewSheet(tab)
		require.NoError(t, err)
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	_, err = store.Put(context.Background(), name, "application/octet-stream", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
}

func readCell(t *testing.T, store storage.Storage, name, sheet, cell string) string {
	t.Helper()
	rc, err := store.Get(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	f, err := excelize.OpenReader(rc)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheet, cell)
	require.NoError(t, err)
	return v
}

func TestWorkbookBackend_WriteColumn(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	backend := sheets.NewWorkbookBackend(store, "workbooks", zap.NewNop())
	seedWorkbook(t, store, "workbooks/book.xlsx", "North")

	err = backend.WriteColumn(context.Background(), "book", "North", "C", 4, []any{12.0, "", "text"})
	require.NoError(t, err)

	assert.Equal(t, "12", readCell(t, store, "workbooks/book.xlsx", "North", "C4"))
	assert.Equal(t, "", readCell(t, store, "workbooks/book.xlsx", "North", "C5"))
	assert.Equal(t, "text", readCell(t, store, "workbooks/book.xlsx", "North", "C6"))
}

func TestWorkbookBackend_ConfigFailures(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	backend := sheets.NewWorkbookBackend(store, "", zap.NewNop())
	seedWorkbook(t, store, "book.xlsx", "North")

	err = backend.WriteColumn(context.Background(), "missing", "North", "B", 1, []any{1})
	assert.ErrorIs(t, err, sheets.ErrConfig)

	err = backend.WriteColumn(context.Background(), "book.xlsx", "South", "B", 1, []any{1})
	assert.ErrorIs(t, err, sheets.ErrConfig)
}

func TestWorkbookBackend_ConcurrentBlocksAllLand(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	backend := sheets.NewWorkbookBackend(store, "", zap.NewNop())
	seedWorkbook(t, store, "book.xlsx", "Main")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			column := string(rune('B' + i))
			assert.NoError(t, backend.WriteColumn(context.Background(), "book", "Main", column, 2, []any{float64(i)}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		column := string(rune('B' + i))
		assert.Equal(t, fmt.Sprint(i), readCell(t, store, "book.xlsx", "Main", column+"2"))
	}
}

func TestWorkbookBackend_WaitForLockHonoursContext(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	backend := sheets.NewWorkbookBackend(store, "", zap.NewNop())
	seedWorkbook(t, store, "book.xlsx", "Main")

	unlock, err := backend.LockWorkbook(context.Background(), "book")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = backend.WriteColumn(ctx, "book", "Main", "B", 2, []any{1.0})
	assert.ErrorIs(t, err, sheets.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "", readCell(t, store, "book.xlsx", "Main", "B2"))

	unlock()
	require.NoError(t, backend.WriteColumn(context.Background(), "book", "Main", "B", 2, []any{1.0}))
	assert.Equal(t, "1", readCell(t, store, "book.xlsx", "Main", "B2"))

	// a cancelled waiter leaves no lock behind
	relock, err := backend.LockWorkbook(context.Background(), "book")
	require.NoError(t, err)
	relock()
}

func TestWorkbookBackend_ObjectName(t *testing.T) {
	backend := sheets.NewWorkbookBackend(nil, "mirror", zap.NewNop())
	assert.Equal(t, "mirror/book.xlsx", backend.ObjectName("book"))
	assert.Equal(t, "mirror/Book.XLSX", backend.ObjectName("Book.XLSX"))
}
