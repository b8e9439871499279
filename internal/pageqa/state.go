package pageqa

import (
	"sync"
	"time"
)

// State is the lifecycle state of one page
type State string

const (
	StateIdle     State = "idle"
	StateIndexing State = "indexing"
	StateReady    State = "ready"
	StateQuerying State = "querying"
	StateError    State = "error"
)

// PageStatus reports a page's state. LastError is set while the page is in
// StateError and cleared by the next operation.
type PageStatus struct {
	PageKey   string    `json:"page_key"`
	State     State     `json:"state"`
	LastError string    `json:"last_error,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type pageState struct {
	state     State
	lastErr   error
	chunks    int
	inflight  int
	updatedAt time.Time
}

// tracker holds the state machine of every page touched by the service
type tracker struct {
	mu    sync.Mutex
	pages map[string]*pageState
}

func newTracker() *tracker {
	return &tracker{pages: make(map[string]*pageState)}
}

// begin moves pageKey into an active state and clears any previous error
func (t *tracker) begin(pageKey string, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pages[pageKey]
	if !ok {
		p = &pageState{}
		t.pages[pageKey] = p
	}
	p.inflight++
	p.state = state
	p.lastErr = nil
	p.updatedAt = time.Now()
}

// end finishes an operation started with begin. A failure leaves the page
// in StateError; success returns it to StateReady once nothing else runs.
// ready reports whether a live store exists for the page.
func (t *tracker) end(pageKey string, err error, chunks int, ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pages[pageKey]
	if !ok {
		return
	}
	p.inflight--
	p.updatedAt = time.Now()
	if chunks > 0 {
		p.chunks = chunks
	}

	switch {
	case err != nil:
		p.state = StateError
		p.lastErr = err
	case p.inflight > 0:
	case ready:
		p.state = StateReady
	default:
		p.state = StateIdle
	}
}

// status returns the state of pageKey. Untracked pages are Ready when a
// live store exists and Idle otherwise.
func (t *tracker) status(pageKey string, ready bool) PageStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pages[pageKey]
	if !ok {
		s := PageStatus{PageKey: pageKey, State: StateIdle}
		if ready {
			s.State = StateReady
		}
		return s
	}

	s := PageStatus{
		PageKey:   pageKey,
		State:     p.state,
		Chunks:    p.chunks,
		UpdatedAt: p.updatedAt,
	}
	if p.state == StateReady && !ready {
		s.State = StateIdle
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// keys returns every tracked page
func (t *tracker) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.pages))
	for k := range t.pages {
		keys = append(keys, k)
	}
	return keys
}

// forget drops pageKey unless an operation is running on it
func (t *tracker) forget(pageKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.pages[pageKey]; ok && p.inflight == 0 {
		delete(t.pages, pageKey)
	}
}

// forgetAll drops every idle page
func (t *tracker) forgetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, p := range t.pages {
		if p.inflight == 0 {
			delete(t.pages, k)
		}
	}
}
