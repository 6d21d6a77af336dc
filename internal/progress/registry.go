// Package progress bridges long running uploads to live subscribers
// (Server-Sent Events or websocket). Entries must be disposed on every
// exit path; Sweep removes the ones a crashed upload left behind.
package progress

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusProgress  Status = "progress"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

type Event struct {
	UploadID    string `json:"uploadId"`
	Status      Status `json:"status"`
	Bytes       int64  `json:"bytes"`
	Total       int64  `json:"total"`
	Percent     int    `json:"percent"`
	RecordingID string `json:"recordingId,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Status == StatusDone || e.Status == StatusError || e.Status == StatusCancelled
}

var (
	ErrExists  = errors.New("upload id already in use")
	ErrUnknown = errors.New("unknown upload id")
)

const subBuffer = 16

type entry struct {
	opened time.Time
	last   *Event
	subs   map[int]chan Event
	nextID int
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{entries: make(map[string]*entry), now: time.Now, log: log}
}

func (r *Registry) Open(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return ErrExists
	}
	r.entries[id] = &entry{opened: r.now(), subs: make(map[int]chan Event)}
	return nil
}

// Publish раздаёт событие подписчикам. Медленный подписчик теряет
// самое старое событие из буфера, но не блокирует загрузку.
func (r *Registry) Publish(id string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	ev.UploadID = id
	e.last = &ev
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribe возвращает канал событий (сразу с последним известным) и функцию отписки.
// Канал закрывается при Dispose.
func (r *Registry) Subscribe(id string) (<-chan Event, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil, ErrUnknown
	}
	sid := e.nextID
	e.nextID++
	ch := make(chan Event, subBuffer)
	if e.last != nil {
		ch <- *e.last
	}
	e.subs[sid] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := e.subs[sid]; ok {
			delete(e.subs, sid)
			close(c)
		}
	}
	return ch, cancel, nil
}

func (r *Registry) Dispose(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeLocked(id)
}

func (r *Registry) disposeLocked(id string) {
	e, ok := r.entries[id]
	if !ok {
		return
	}
	for sid, ch := range e.subs {
		delete(e.subs, sid)
		close(ch)
	}
	delete(r.entries, id)
}

// Sweep удаляет записи старше olderThan и возвращает их число.
func (r *Registry) Sweep(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-olderThan)
	n := 0
	for id, e := range r.entries {
		if e.opened.Before(cutoff) {
			r.disposeLocked(id)
			n++
		}
	}
	if n > 0 {
		r.log.Info("stale upload progress entries swept", zap.Int("count", n))
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
