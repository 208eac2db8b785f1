package router

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhoneLocks_Serializes(t *testing.T) {
	locks := newPhoneLocks()

	const goroutines = 50
	counter := 0

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			locks.Lock("4915112345678")
			counter++
			locks.Unlock("4915112345678")
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestPhoneLocks_IndependentPhones(t *testing.T) {
	locks := newPhoneLocks()

	locks.Lock("4915100000001")

	done := make(chan struct{})
	go func() {
		// A different phone must not block.
		locks.Lock("4915100000002")
		locks.Unlock("4915100000002")
		close(done)
	}()

	<-done
	locks.Unlock("4915100000001")
}

func TestPhoneLocks_MapStaysBounded(t *testing.T) {
	locks := newPhoneLocks()

	locks.Lock("4915112345678")
	locks.Unlock("4915112345678")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
