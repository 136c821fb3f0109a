// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/imrishuroy/go-workorder-sync/internal/store"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// Memory implements store.Store with the same sync-flag semantics as the real
// backends. Error fields inject failures into the matching operation.
type Memory struct {
	mu      sync.Mutex
	records map[int64]workorders.WorkOrder

	Now func() time.Time

	HealthErr error
	ReadErr   error
	// UpsertErr is consulted per record; returning nil lets the write through.
	UpsertErr func(wo workorders.WorkOrder) error
	MarkErr   func(number int64) error

	Upserts     int
	MarkCalls   int
	HealthCalls int
	CloseCalls  int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		records: map[int64]workorders.WorkOrder{},
		Now:     time.Now,
	}
}

// Put stores wo exactly as given, bypassing the dirty-marking of Upsert.
func (m *Memory) Put(wo workorders.WorkOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[wo.Number] = wo
}

// All returns every record ordered by number.
func (m *Memory) All() []workorders.WorkOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]workorders.WorkOrder, 0, len(m.records))
	for _, wo := range m.records {
		out = append(out, wo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (m *Memory) ReadUnsynced(ctx context.Context) ([]workorders.WorkOrder, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []workorders.WorkOrder
	for _, wo := range m.All() {
		if !wo.IsSynced {
			out = append(out, wo)
		}
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, wo workorders.WorkOrder) error {
	if wo.Number == 0 {
		return &store.PermanentError{Op: "upsert", Err: store.ErrMissingNumber}
	}
	if m.UpsertErr != nil {
		if err := m.UpsertErr(wo); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts++
	wo.IsSynced = false
	wo.SyncedAt = nil
	wo.UpdatedAt = m.Now()
	m.records[wo.Number] = wo
	return nil
}

func (m *Memory) MarkSynced(ctx context.Context, number int64) (bool, error) {
	if m.MarkErr != nil {
		if err := m.MarkErr(number); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkCalls++
	wo, ok := m.records[number]
	if !ok {
		return false, nil
	}
	now := m.Now()
	wo.IsSynced = true
	wo.SyncedAt = &now
	m.records[number] = wo
	return true, nil
}

func (m *Memory) Get(ctx context.Context, number int64) (*workorders.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.records[number]
	if !ok {
		return nil, nil
	}
	return &wo, nil
}

func (m *Memory) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthErr
}

func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

var _ store.Store = (*Memory)(nil)
