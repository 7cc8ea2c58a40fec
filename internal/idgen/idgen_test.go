package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID_NextID_Range(t *testing.T) {
	var g UUID
	for i := 0; i < 1000; i++ {
		id := g.NextID()
		require.Positive(t, id)
		require.LessOrEqual(t, id, int64(maxSafe))
	}
}

func TestUUID_NextID_Concurrent(t *testing.T) {
	const workers, perWorker = 8, 500

	var (
		g   UUID
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[int64]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := g.NextID()
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, workers*perWorker)
}

func TestFunc(t *testing.T) {
	g := Func(func() int64 { return 42 })
	assert.Equal(t, int64(42), g.NextID())
}
