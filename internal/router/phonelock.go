package router

import "sync"

// phoneLocks serializes routing per phone so the read-decide-mutate
// sequence never interleaves for the same customer. Entries are reference
// counted and removed once the last holder leaves, keeping the map bounded
// by the number of concurrently active phones.
type phoneLocks struct {
	mu    sync.Mutex
	locks map[string]*phoneLock
}

type phoneLock struct {
	mu   sync.Mutex
	refs int
}

func newPhoneLocks() *phoneLocks {
	return &phoneLocks{locks: make(map[string]*phoneLock)}
}

func (p *phoneLocks) Lock(phone string) {
	p.mu.Lock()
	l, ok := p.locks[phone]
	if !ok {
		l = &phoneLock{}
		p.locks[phone] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
}

func (p *phoneLocks) Unlock(phone string) {
	p.mu.Lock()
	l, ok := p.locks[phone]
	if ok {
		l.refs--
		if l.refs <= 0 {
			delete(p.locks, phone)
		}
	}
	p.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
