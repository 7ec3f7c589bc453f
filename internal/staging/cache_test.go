package staging

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filerelay/internal/models"
)

func staged(handle string) *models.StagedFile {
	return &models.StagedFile{Handle: handle, FileName: handle + ".txt", Content: []byte(handle), Size: int64(len(handle))}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-3)
	require.Error(t, err)
}

func TestPutKeepsNewestEntries(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Put(staged(fmt.Sprintf("h%d", i))))
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, []string{"h7", "h8", "h9"}, c.entries.Keys())
	for i := 0; i < 7; i++ {
		_, ok := c.Take(fmt.Sprintf("h%d", i))
		assert.False(t, ok, "h%d should have been evicted", i)
	}
}

func TestMissedLookupsDoNotPromote(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)
	require.NoError(t, c.Put(staged("a")))
	require.NoError(t, c.Put(staged("b")))

	// lookups of absent handles leave insertion order untouched
	_, ok := c.Take("zzz")
	require.False(t, ok)
	require.NoError(t, c.Put(staged("c")))

	_, ok = c.Take("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, c.entries.Keys())
}

func TestTakeConsumesOnce(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	require.NoError(t, c.Put(staged("once")))

	got, ok := c.Take("once")
	require.True(t, ok)
	assert.Equal(t, "once.txt", got.FileName)
	assert.Equal(t, []byte("once"), got.Content)

	_, ok = c.Take("once")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentTakeHasSingleWinner(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	for round := 0; round < 50; round++ {
		handle := fmt.Sprintf("race-%d", round)
		require.NoError(t, c.Put(staged(handle)))

		var wins int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, ok := c.Take(handle); ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		close(start)
		wg.Wait()
		require.EqualValues(t, 1, wins, "round %d", round)
	}
}

func TestConcurrentPutRespectsCapacity(t *testing.T) {
	c, err := New(5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = c.Put(staged(fmt.Sprintf("w%d-%d", w, i)))
				if n := c.Len(); n > 5 {
					t.Errorf("cache grew to %d", n)
				}
				c.Take(fmt.Sprintf("w%d-%d", w, i-1))
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 5)
}

func TestPutRejectsLiveHandle(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)
	require.NoError(t, c.Put(staged("dup")))
	assert.ErrorIs(t, c.Put(staged("dup")), ErrHandleExists)
	assert.Equal(t, 1, c.Len())

	// once consumed the handle can no longer collide
	_, ok := c.Take("dup")
	require.True(t, ok)
	assert.NoError(t, c.Put(staged("dup")))
}

func TestEvictHookSeesOnlyEvictions(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	c, err := New(2, WithEvictHook(func(f *models.StagedFile) {
		mu.Lock()
		evicted = append(evicted, f.Handle)
		mu.Unlock()
	}))
	require.NoError(t, err)

	require.NoError(t, c.Put(staged("h1")))
	require.NoError(t, c.Put(staged("h2")))
	_, ok := c.Take("h2")
	require.True(t, ok)
	require.NoError(t, c.Put(staged("h3")))
	require.NoError(t, c.Put(staged("h4")))

	assert.Equal(t, []string{"h1"}, evicted)
	assert.Equal(t, 2, c.Capacity())
}

func TestCapacityTwoScenario(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)
	for _, h := range []string{"H1", "H2", "H3"} {
		require.NoError(t, c.Put(staged(h)))
	}

	_, ok := c.Take("H1")
	assert.False(t, ok)
	_, ok = c.Take("H2")
	assert.True(t, ok)
	_, ok = c.Take("H3")
	assert.True(t, ok)
}
