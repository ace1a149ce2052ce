package browser

import (
	"sync"
	"time"
)

// Session is a provisioned browser handed to clients.
type Session struct {
	ID          string `json:"sessionId"`
	LiveViewURL string `json:"liveViewUrl"`
	CDPWSURL    string `json:"cdpWsUrl"`
	SpinUpTime  int64  `json:"spinUpTime"`
}

type recordedSession struct {
	recordedAt time.Time
	session    Session
}

// Registry tracks the process's single current session and whether a
// creation is in flight. All methods are safe for concurrent use.
type Registry struct {
	now      func() time.Time
	latest   *recordedSession
	inFlight chan struct{}
	mu       sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{now: time.Now}
}

// TryBeginCreate marks a creation as in flight. It returns false when one
// already is.
func (r *Registry) TryBeginCreate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight != nil {
		return false
	}
	r.inFlight = make(chan struct{})
	return true
}

// EndCreate clears the in-flight flag and wakes waiters on Done.
func (r *Registry) EndCreate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight != nil {
		close(r.inFlight)
		r.inFlight = nil
	}
}

// Done returns a channel closed when the in-flight creation ends. It returns
// a closed channel when nothing is in flight.
func (r *Registry) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.inFlight
}

// InFlight reports whether a creation is running.
func (r *Registry) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight != nil
}

// RecordSession stores s as the latest session, stamped with the current time.
func (r *Registry) RecordSession(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = &recordedSession{session: s, recordedAt: r.now()}
}

// RecentSession returns the latest session if it was recorded within window.
func (r *Registry) RecentSession(window time.Duration) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest == nil || r.now().Sub(r.latest.recordedAt) > window {
		return Session{}, false
	}
	return r.latest.session, true
}

// CurrentSession returns the latest session regardless of age.
func (r *Registry) CurrentSession() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest == nil {
		return Session{}, false
	}
	return r.latest.session, true
}

// Clear drops the latest session when it matches id. An empty id clears
// unconditionally.
func (r *Registry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest == nil {
		return
	}
	if id == "" || r.latest.session.ID == id {
		r.latest = nil
	}
}
