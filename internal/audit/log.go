package audit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"opsfloww.io/internal/ids"
	"opsfloww.io/internal/obs"
)

// Event is one audit record.
type Event struct {
	ID         string
	OccurredAt time.Time
	Name       string
	RequestID  string
	UserID     string
	Fields     map[string]any
}

func newEvent(ctx context.Context, name string, fields map[string]any) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, errors.New("event name is required")
	}
	copyFields := make(map[string]any, len(fields))
	maps.Copy(copyFields, fields)
	return Event{
		ID:         ids.New(),
		OccurredAt: time.Now().UTC(),
		Name:       name,
		RequestID:  obs.RequestIDFromContext(ctx),
		UserID:     obs.UserIDFromContext(ctx),
		Fields:     copyFields,
	}, nil
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	ev, err := newEvent(ctx, event, fields)
	if err != nil {
		return err
	}
	writeLog(ev)
	return nil
}

func writeLog(ev Event) {
	entry := obs.Logger().WithFields(logrus.Fields{
		"type":     "audit",
		"event":    ev.Name,
		"audit_id": ev.ID,
		"fields":   ev.Fields,
	})
	if ev.RequestID != "" {
		entry = entry.WithField("request_id", ev.RequestID)
	}
	if ev.UserID != "" {
		entry = entry.WithField("user_id", ev.UserID)
	}
	entry.Info("audit")
}

// Sink persists audit events beyond the log stream.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Recorder logs every event and forwards it to an optional sink.
type Recorder struct {
	sink Sink
}

// NewRecorder returns a recorder. A nil sink logs only.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record logs the event and appends it to the sink. Sink failures are logged,
// not returned, so an audit outage never fails the request that triggered it.
func (r *Recorder) Record(ctx context.Context, event string, fields map[string]any) {
	ev, err := newEvent(ctx, event, fields)
	if err != nil {
		obs.FromContext(ctx).WithError(err).Warn("audit event dropped")
		return
	}
	writeLog(ev)
	if r == nil || r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, ev); err != nil {
		obs.FromContext(ctx).WithError(err).WithField("event", ev.Name).Error("audit sink append failed")
	}
}
