package sheets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/straye-as/indicator-api/internal/storage"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkbookBackend mirrors into .xlsx workbooks kept in blob storage.
// The spreadsheet id names the workbook object under the configured prefix.
type WorkbookBackend struct {
	store  storage.Storage
	prefix string
	locks  *keyedMutex
	logger *zap.Logger
}

// NewWorkbookBackend creates a workbook backend on top of a storage backend
func NewWorkbookBackend(store storage.Storage, prefix string, logger *zap.Logger) *WorkbookBackend {
	return &WorkbookBackend{
		store:  store,
		prefix: prefix,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// ObjectName returns the storage name of a workbook
func (b *WorkbookBackend) ObjectName(spreadsheetID string) string {
	name := spreadsheetID
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// WriteColumn rewrites one column run of a workbook tab.
// Writes to the same workbook are serialized so concurrent blocks do not overwrite each other's edits.
func (b *WorkbookBackend) WriteColumn(ctx context.Context, spreadsheetID, sheetName, column string, startRow int, values []any) error {
	const op = "workbook.write"
	name := b.ObjectName(spreadsheetID)

	unlock, err := b.locks.Lock(ctx, name)
	if err != nil {
		return newError(KindTransient, op, fmt.Errorf("waiting for workbook %s: %w", name, err))
	}
	defer unlock()

	rc, err := b.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(KindConfig, op, fmt.Errorf("workbook %s does not exist", name))
		}
		return newError(KindTransient, op, err)
	}
	f, err := excelize.OpenReader(rc)
	rc.Close()
	if err != nil {
		return newError(KindConfig, op, fmt.Errorf("workbook %s is unreadable: %w", name, err))
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheetName)
	if err != nil || idx < 0 {
		return newError(KindConfig, op, fmt.Errorf("sheet %q not found in workbook %s", sheetName, name))
	}

	for i, v := range values {
		cell := fmt.Sprintf("%s%d", column, startRow+i)
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return newError(KindConfig, op, fmt.Errorf("failed to set %s!%s: %w", sheetName, cell, err))
		}
	}

	if err := ctx.Err(); err != nil {
		return newError(KindTransient, op, err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return newError(KindTransient, op, fmt.Errorf("failed to encode workbook: %w", err))
	}
	if _, err := b.store.Put(ctx, name, xlsxContentType, bytes.NewReader(buf.Bytes())); err != nil {
		return newError(KindTransient, op, err)
	}

	b.logger.Debug("Workbook column written",
		zap.String("workbook", name),
		zap.String("sheet_name", sheetName),
		zap.String("column", column),
		zap.Int("start_row", startRow),
		zap.Int("rows", len(values)),
	)
	return nil
}

// keyedMutex hands out one lock per key and drops it once nobody holds or waits on it.
// Each lock is a one-slot channel so waiters can give up when their context ends.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the key's lock and returns its release function.
// It returns ctx.Err() if the context ends while waiting.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
	return func() {
		<-l.ch
		k.release(key, l)
	}, nil
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
