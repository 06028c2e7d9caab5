package merge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := &keyedMutex{held: map[string]*lockEntry{}}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := []string{"S", string(rune('a' + i%26))}
			unlock := k.lock(ids...)
			unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, k.size())
}

func TestKeyedMutex_SerialisesSharedIDs(t *testing.T) {
	k := &keyedMutex{held: map[string]*lockEntry{}}

	unlock := k.lock("A", "B")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		k.lock("B", "C")()
	}()

	assert.Eventually(t, func() bool { return k.size() == 3 }, time.Second, time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second lock acquired while B was held")
	default:
	}

	unlock()
	<-acquired
	assert.Zero(t, k.size())
}
