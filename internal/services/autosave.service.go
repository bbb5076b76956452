package services

import (
	"context"
	"entryready/internal/logger"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

var ErrAutosaverClosed = errors.New("autosaver is closed")

type AutosaveKey struct {
	UserID      string
	EntryInfoID string
}

// FlushFunc receives the sorted, de-duplicated field keys edited on one entry
// during a debounce window.
type FlushFunc func(ctx context.Context, key AutosaveKey, fields []string) error

type pendingEdits struct {
	fields map[string]struct{}
	timer  *time.Timer
}

// Autosaver coalesces field edits per entry. Each new edit restarts the
// entry's window; the flush runs once the window passes without edits.
type Autosaver struct {
	window  time.Duration
	flush   FlushFunc
	mu      sync.Mutex
	pending map[AutosaveKey]*pendingEdits
	closed  bool
	running sync.WaitGroup
	log     logger.Logger
}

func NewAutosaver(window time.Duration, flush FlushFunc) *Autosaver {
	if window <= 0 {
		window = 1500 * time.Millisecond
	}

	return &Autosaver{
		window:  window,
		flush:   flush,
		pending: make(map[AutosaveKey]*pendingEdits),
		log:     logger.New("Autosaver"),
	}
}

func (a *Autosaver) Queue(userID, entryInfoID string, fields []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAutosaverClosed
	}

	key := AutosaveKey{UserID: userID, EntryInfoID: entryInfoID}
	edits, ok := a.pending[key]
	if !ok {
		edits = &pendingEdits{fields: make(map[string]struct{})}
		edits.timer = time.AfterFunc(a.window, func() { a.fire(key, edits) })
		a.pending[key] = edits
	} else {
		edits.timer.Reset(a.window)
	}

	for _, field := range fields {
		edits.fields[field] = struct{}{}
	}
	return nil
}

func (a *Autosaver) fire(key AutosaveKey, edits *pendingEdits) {
	a.mu.Lock()
	if a.pending[key] != edits {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	a.running.Add(1)
	a.mu.Unlock()

	defer a.running.Done()
	if err := a.run(key, edits); err != nil {
		a.log.Function("fire").Er("autosave flush failed", err,
			"userID", key.UserID,
			"entryInfoID", key.EntryInfoID,
		)
	}
}

// Flush runs the pending edits of one entry immediately.
func (a *Autosaver) Flush(userID, entryInfoID string) error {
	key := AutosaveKey{UserID: userID, EntryInfoID: entryInfoID}

	a.mu.Lock()
	edits, ok := a.pending[key]
	if ok {
		edits.timer.Stop()
		delete(a.pending, key)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}
	return a.run(key, edits)
}

func (a *Autosaver) run(key AutosaveKey, edits *pendingEdits) error {
	fields := slices.Sorted(maps.Keys(edits.fields))
	return a.flush(context.Background(), key, fields)
}

func (a *Autosaver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Close flushes everything still pending and waits for running flushes.
func (a *Autosaver) Close() error {
	a.mu.Lock()
	a.closed = true
	pending := a.pending
	a.pending = make(map[AutosaveKey]*pendingEdits)
	for _, edits := range pending {
		edits.timer.Stop()
	}
	a.mu.Unlock()

	var errs []error
	for key, edits := range pending {
		errs = append(errs, a.run(key, edits))
	}
	a.running.Wait()

	return errors.Join(errs...)
}
