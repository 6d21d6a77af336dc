package demo

import "sync"

// keyLocks не даёт двум выдачам одного пользователя пройти проверку лимита одновременно.
// Работает в пределах процесса.
type keyLocks struct {
	mu   sync.Mutex
	byID map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{byID: make(map[string]*refMutex)}
}

func (l *keyLocks) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.byID[key]
	if !ok {
		m = &refMutex{}
		l.byID[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.byID, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
