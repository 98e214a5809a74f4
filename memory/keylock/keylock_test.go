package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-memory/memory/keylock"
)

func TestMap_SerializesSameKey(t *testing.T) {
	var (
		m       keylock.Map
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, m.Len())
}

func TestMap_IndependentKeys(t *testing.T) {
	var m keylock.Map

	unlockA := m.Lock("a")
	unlockB := m.Lock("b") // must not block on "a"
	assert.Equal(t, 2, m.Len())

	unlockA()
	unlockA() // idempotent
	unlockB()
	assert.Equal(t, 0, m.Len())
}
