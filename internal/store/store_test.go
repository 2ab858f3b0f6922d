package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/chartloom-cli/internal/testutil"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, capacity int, ttl time.Duration) (*Store, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{Capacity: capacity, TTL: ttl, Logger: testutil.Logger(t), Now: clk.Now}), clk
}

const sales = "date,region,sales\n2024-01-01,north,10\n2024-01-02,south,20\n"

func TestAddGetDelete(t *testing.T) {
	s, _ := newTestStore(t, 0, 0)
	tbl, kinds := testutil.Table(t, "sales", sales)

	d := s.Add("sales.csv", tbl, kinds)
	require.NotEmpty(t, d.ID)
	assert.Equal(t, "date", d.Defaults.DateColumn.Name())
	assert.Equal(t, "sales", d.Defaults.ValueColumn.Name())

	got, err := s.Get(d.ID)
	require.NoError(t, err)
	assert.Same(t, d, got)

	require.NoError(t, s.Delete(d.ID))
	_, err = s.Get(d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(d.ID), ErrNotFound)
}

func TestIDsAreUnique(t *testing.T) {
	s, _ := newTestStore(t, 0, 0)
	tbl, kinds := testutil.Table(t, "sales", sales)
	a := s.Add("a.csv", tbl, kinds)
	b := s.Add("b.csv", tbl, kinds)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	s, clk := newTestStore(t, 2, 0)
	var reasons []string
	s.OnEvict = func(r string) { reasons = append(reasons, r) }
	tbl, kinds := testutil.Table(t, "sales", sales)

	first := s.Add("first.csv", tbl, kinds)
	clk.Advance(time.Second)
	second := s.Add("second.csv", tbl, kinds)
	clk.Advance(time.Second)
	_, err := s.Get(first.ID) // first is now the most recent
	require.NoError(t, err)
	clk.Advance(time.Second)
	third := s.Add("third.csv", tbl, kinds)

	_, err = s.Get(second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(first.ID)
	assert.NoError(t, err)
	_, err = s.Get(third.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"capacity"}, reasons)
}

func TestTTLExpiry(t *testing.T) {
	s, clk := newTestStore(t, 0, time.Minute)
	tbl, kinds := testutil.Table(t, "sales", sales)
	old := s.Add("old.csv", tbl, kinds)
	clk.Advance(45 * time.Second)
	fresh := s.Add("fresh.csv", tbl, kinds)
	clk.Advance(30 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	_, err := s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(fresh.ID)
	assert.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = s.Get(fresh.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestListOrder(t *testing.T) {
	s, clk := newTestStore(t, 0, 0)
	tbl, kinds := testutil.Table(t, "sales", sales)
	a := s.Add("a.csv", tbl, kinds)
	clk.Advance(time.Second)
	b := s.Add("b.csv", tbl, kinds)
	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestConcurrentAccess(t *testing.T) {
	s := New(Options{Capacity: 8})
	tbl, kinds := testutil.Table(t, "sales", sales)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := s.Add("x.csv", tbl, kinds)
			_, _ = s.Get(d.ID)
			_ = s.List()
			s.Sweep()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 8)
}
