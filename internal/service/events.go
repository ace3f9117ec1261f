package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/observability"
)

// Event names published by the engine.
const (
	EventMistakesRecorded   = "mistakes.recorded"
	EventAnalyticsCompleted = "analytics.completed"
)

// MistakesRecordedEvent is published after the recorder wrote a submission's mistakes.
type MistakesRecordedEvent struct {
	CourseID     string    `json:"course_id"`
	StudentID    string    `json:"student_id"`
	SubmissionID string    `json:"submission_id"`
	GradingPass  int       `json:"grading_pass"`
	MistakeIDs   []string  `json:"mistake_ids"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// AnalyticsCompletedEvent is published after an analytics run persisted its results.
type AnalyticsCompletedEvent struct {
	Scope        string    `json:"scope"`
	Detector     string    `json:"detector"`
	MistakeCount int       `json:"mistake_count"`
	ClusterCount int       `json:"cluster_count"`
	SectionCount int       `json:"section_count"`
	CompletedAt  time.Time `json:"completed_at"`
}

// EventPublisher delivers engine events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// EventSubject joins the configured prefix and an event name into a broker subject.
func EventSubject(prefix, event string) string {
	prefix = strings.Trim(strings.ReplaceAll(prefix, ":", "."), ".")
	if prefix == "" {
		return event
	}
	return prefix + "." + event
}

type natsEventPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSEventPublisher publishes events as JSON on <prefix>.<event>. A nil connection yields
// a publisher that drops events.
func NewNATSEventPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	if conn == nil {
		return NopEventPublisher()
	}
	return &natsEventPublisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) Publish(ctx context.Context, event string, payload interface{}) error {
	subject := EventSubject(p.prefix, event)
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	if correlationID := observability.CorrelationIDFromContext(ctx); correlationID != "" {
		msg.Header.Set(observability.CorrelationHeader, correlationID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		observability.EventsPublished().WithLabelValues(subject, "error").Inc()
		return err
	}
	observability.EventsPublished().WithLabelValues(subject, "ok").Inc()
	p.logger.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("event published")
	return nil
}

type nopEventPublisher struct{}

// NopEventPublisher discards every event.
func NopEventPublisher() EventPublisher { return nopEventPublisher{} }

func (nopEventPublisher) Publish(context.Context, string, interface{}) error { return nil }
