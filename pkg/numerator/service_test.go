package numerator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "motoledger/internal/core/numerator"
)

// counterStore simulates sys_sequences.
type counterStore struct {
	mu       sync.Mutex
	values   map[string]int64
	reserves int
	err      error
}

func newCounterStore() *counterStore {
	return &counterStore{values: make(map[string]int64)}
}

func (s *counterStore) Reserve(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.reserves++
	s.values[key] += n
	return s.values[key], nil
}

func (s *counterStore) Set(ctx context.Context, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

var period = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	store := newCounterStore()
	svc := New(store)
	ctx := context.Background()
	cfg := core.DefaultConfig("CR")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "CR-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "CR-2026-00002", num)
	assert.Equal(t, 2, store.reserves)

	t.Run("new year restarts", func(t *testing.T) {
		num, err := svc.GetNextNumber(ctx, cfg, nil, period.AddDate(1, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, "CR-2027-00001", num)
	})
}

func TestGetNextNumber_Cached(t *testing.T) {
	store := newCounterStore()
	svc := New(store)
	ctx := context.Background()
	cfg := core.DefaultConfig("IN")
	opts := &core.Options{Strategy: core.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00001", num)
	assert.Equal(t, int64(10), store.values["IN_2026"])

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00002", num)
	assert.Equal(t, 1, store.reserves, "second number comes from memory")

	for i := 0; i < 8; i++ {
		_, err := svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00011", num)
	assert.Equal(t, int64(20), store.values["IN_2026"])
}

func TestGetNextNumber_Concurrent(t *testing.T) {
	svc := New(newCounterStore())
	cfg := core.DefaultConfig("RT")
	opts := &core.Options{Strategy: core.StrategyCached, RangeSize: 7}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.GetNextNumber(context.Background(), cfg, opts, period)
			assert.NoError(t, err)
			mu.Lock()
			seen[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	assert.True(t, seen[fmt.Sprintf("RT-2026-%05d", 50)])
}

func TestSetNextNumber_InvalidatesCache(t *testing.T) {
	store := newCounterStore()
	svc := New(store)
	ctx := context.Background()
	cfg := core.DefaultConfig("IN")
	opts := &core.Options{Strategy: core.StrategyCached, RangeSize: 10}

	_, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)

	require.NoError(t, svc.SetNextNumber(ctx, cfg, period, 100))

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "IN-2026-00101", num)
}

func TestGetNextNumber_StoreError(t *testing.T) {
	store := newCounterStore()
	store.err = errors.New("connection refused")
	svc := New(store)

	_, err := svc.GetNextNumber(context.Background(), core.DefaultConfig("CR"), nil, period)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict next")
}

func TestFormatAndParse(t *testing.T) {
	tests := []struct {
		name string
		cfg  core.Config
		num  int64
		want string
	}{
		{"with year", core.DefaultConfig("CR"), 42, "CR-2026-00042"},
		{"no year", core.Config{Prefix: "RT", PadWidth: 3}, 7, "RT-007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.Format(period, tt.num)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.num, ParseNumber(got))
		})
	}
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}

func TestSequenceKey(t *testing.T) {
	cfg := core.DefaultConfig("IN")
	assert.Equal(t, "IN_2026", cfg.SequenceKey(period))

	cfg.ResetPeriod = core.ResetMonthly
	assert.Equal(t, "IN_"+period.Format("2006_01"), cfg.SequenceKey(period))

	cfg.ResetPeriod = core.ResetNever
	assert.Equal(t, "IN", cfg.SequenceKey(period))
}
