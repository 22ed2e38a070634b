package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/ledger"
)

func startStore(t *testing.T, l ledger.Ledger) *Store {
	t.Helper()
	s := NewStore(l)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func TestStore_SerializesConcurrentWriters(t *testing.T) {
	l := ledger.New(nil)
	l.Initialize(testCatalog())
	s := startStore(t, l)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), func(l ledger.Ledger) error {
				l.IncrementQuantity("pizza")
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var total int64
	require.NoError(t, s.Do(context.Background(), func(l ledger.Ledger) error {
		total = l.ComputeTotalCents()
		return nil
	}))
	assert.Equal(t, int64(100*700), total)
}

func TestStore_PreservesOrder(t *testing.T) {
	s := startStore(t, ledger.New(nil))

	var seen []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, s.Do(context.Background(), func(ledger.Ledger) error {
			seen = append(seen, i)
			return nil
		}))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestStore_ClosedAfterCancel(t *testing.T) {
	s := NewStore(ledger.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("store did not stop")
	}

	err := s.Do(context.Background(), func(ledger.Ledger) error { return nil })
	assert.ErrorIs(t, err, ErrStoreClosed)
}
