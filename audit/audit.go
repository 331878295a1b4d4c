// Package audit provides structured audit logging for administrative actions
// and integrity decisions.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	milow "github.com/milow-app/milow-functions"
)

// Actions recorded by the service.
const (
	ActionInviteUser      = "invite_user"
	ActionDeleteUser      = "delete_user"
	ActionResetPassword   = "reset_password"
	ActionVerifyIntegrity = "verify_integrity"
	ActionNotifyRelease   = "notify_release"
)

// Event represents an audit event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	Result    string    `json:"result"` // success, failure, denied
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithSlogHandler adds a handler that writes each event as one structured
// log line.
func WithSlogHandler(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			logger.Info("audit",
				"event_id", e.ID,
				"request_id", e.RequestID,
				"actor_id", e.ActorID,
				"action", e.Action,
				"target", e.Target,
				"result", e.Result,
				"details", e.Details,
				"error", e.Error,
			)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates a new audit logger with buffered async emission.
// bufferSize: event queue buffer size (default: 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		queue: make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events. It must be called
// before events are logged.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. Missing ID and timestamp are filled in.
func (l *Logger) Log(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.done:
		// Logger is shutting down, event is dropped
		return
	default:
	}

	select {
	case l.queue <- event:
	case <-l.done:
	}
}

// LogAdmin records an administrative action. A nil err is a success;
// denied marks an authorization failure.
func (l *Logger) LogAdmin(ctx context.Context, action, actorID, target string, denied bool, err error) {
	e := Event{
		RequestID: milow.RequestIDFromContext(ctx),
		ActorID:   actorID,
		Action:    action,
		Target:    target,
		Result:    "success",
	}
	switch {
	case denied:
		e.Result = "denied"
	case err != nil:
		e.Result = "failure"
	}
	if err != nil {
		e.Error = err.Error()
	}
	l.Log(e)
}

// LogIntegrity records an integrity verification decision.
func (l *Logger) LogIntegrity(ctx context.Context, valid bool, message, deviceIntegrity string) {
	result := "success"
	if !valid {
		result = "denied"
	}
	l.Log(Event{
		RequestID: milow.RequestIDFromContext(ctx),
		Action:    ActionVerifyIntegrity,
		Result:    result,
		Details:   message + " (" + deviceIntegrity + ")",
	})
}

func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			l.emit(event)
		case <-l.done:
			// Drain remaining events
			for {
				select {
				case event := <-l.queue:
					l.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) emit(e Event) {
	for _, h := range l.handlers {
		h(e)
	}
}

// Close flushes pending events and stops the logger. It is safe to call
// more than once.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}
