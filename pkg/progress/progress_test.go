package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"audiotour/pkg/store"
)

// failingStore rejects every write.
type failingStore struct {
	*store.MemoryStore
	sets int
}

func (f *failingStore) SetState(_ context.Context, _, _ string) error {
	f.sets++
	return errors.New("disk full")
}

func (f *failingStore) DeleteState(_ context.Context, _ string) error {
	return errors.New("disk full")
}

// countingStore counts writes.
type countingStore struct {
	*store.MemoryStore
	sets int
}

func (c *countingStore) SetState(ctx context.Context, k, v string) error {
	c.sets++
	return c.MemoryStore.SetState(ctx, k, v)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		raw  *string
		want Record
	}{
		{name: "Absent", raw: nil, want: Default()},
		{name: "Valid", raw: strPtr(`{"active_stop_index":3,"visited":[2,1,2]}`), want: Record{ActiveStopIndex: 3, Visited: []int{1, 2}}},
		{name: "Malformed", raw: strPtr(`{"active_stop_index":`), want: Default()},
		{name: "Wrong type", raw: strPtr(`{"active_stop_index":"two"}`), want: Default()},
		{name: "Negative index", raw: strPtr(`{"active_stop_index":-4,"visited":[]}`), want: Default()},
		{name: "Empty", raw: strPtr(""), want: Default()},
		{name: "Missing visited", raw: strPtr(`{"active_stop_index":1}`), want: Record{ActiveStopIndex: 1, Visited: []int{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			if tt.raw != nil {
				_ = st.SetState(context.Background(), Key("t1"), *tt.raw)
			}
			got := NewAdapter(st).Load(context.Background(), "t1")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSave_DirtyCheck(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	a := NewAdapter(st)

	a.Save(ctx, "t1", Record{ActiveStopIndex: 2, Visited: []int{1}})
	a.Save(ctx, "t1", Record{ActiveStopIndex: 2, Visited: []int{1}})
	assert.Equal(t, 1, st.sets)

	a.Save(ctx, "t1", Record{ActiveStopIndex: 2, Visited: []int{1, 2}})
	assert.Equal(t, 2, st.sets)

	raw, ok := st.GetState(ctx, "progress:t1")
	assert.True(t, ok)
	assert.JSONEq(t, `{"active_stop_index":2,"visited":[1,2]}`, raw)

	assert.Equal(t, Record{ActiveStopIndex: 2, Visited: []int{1, 2}}, a.Load(ctx, "t1"))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	a := NewAdapter(st)

	a.Save(ctx, "t1", Record{ActiveStopIndex: 1, Visited: []int{}})
	a.Delete(ctx, "t1")
	assert.Equal(t, Default(), a.Load(ctx, "t1"))

	// Same record after delete is written again
	a.Save(ctx, "t1", Record{ActiveStopIndex: 1, Visited: []int{}})
	assert.Equal(t, 2, st.sets)
}

func TestBestEffort(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{MemoryStore: store.NewMemoryStore()}
	a := NewAdapter(st)

	assert.NotPanics(t, func() {
		a.Save(ctx, "t1", Record{ActiveStopIndex: 1})
		a.Save(ctx, "t1", Record{ActiveStopIndex: 1})
		a.Delete(ctx, "t1")
	})
	// Failed writes are not remembered, so the next save retries
	assert.Equal(t, 2, st.sets)
}

func strPtr(s string) *string { return &s }
