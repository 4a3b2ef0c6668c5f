package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_DropsOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		require.True(t, rc.Send(i))
	}

	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, uint64(7), rc.Dropped())

	var got []int
	for i := 0; i < 3; i++ {
		v, ok := rc.TryReceive()
		require.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "only the newest values MUST survive")

	_, ok := rc.TryReceive()
	assert.False(t, ok)
}

func TestRingChannel_CloseIsIdempotent(t *testing.T) {
	rc := New[string](1)
	rc.Send("a")
	rc.Close()
	rc.Close()

	assert.False(t, rc.Send("b"), "send after close MUST be rejected")

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestRingChannel_ConcurrentSendersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, rc.Len())
	assert.Equal(t, uint64(8000-4), rc.Dropped())
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
