package service

import (
	"sync"

	"github.com/sakif/hackhub/internal/apperror"
)

// SubmissionGuard is the in-flight flag of every form: while a workflow for
// (client, action) is running, another submission of the same action from
// the same client is rejected instead of queued.
type SubmissionGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{inFlight: make(map[string]struct{})}
}

// Begin marks the action as submitting. The returned release must be called
// when the workflow finishes, whatever the outcome; it is safe to call twice.
func (g *SubmissionGuard) Begin(clientID, action string) (release func(), err error) {
	key := clientID + "\x00" + action

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return nil, &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "This form is already being submitted.",
		}
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}, nil
}

// Submitting reports whether the action is in flight for clientID.
func (g *SubmissionGuard) Submitting(clientID, action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inFlight[clientID+"\x00"+action]
	return busy
}
