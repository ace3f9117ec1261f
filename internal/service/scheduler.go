package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/observability"
	"github.com/noah-isme/gema-kg/internal/repository"
)

const (
	schedulerQueueGroup      = "gema-kg-analytics"
	defaultSchedulerDebounce = 5 * time.Second
)

// AnalyticsScheduler recomputes analytics periodically and after new mistakes are recorded.
// Triggers for the same course are debounced and runs for one course never overlap.
type AnalyticsScheduler struct {
	analytics AnalyticsService
	courses   repository.CourseRepository
	conn      *nats.Conn
	subject   string
	interval  time.Duration
	debounce  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	locks   map[string]*sync.Mutex
	ctx     context.Context
	closed  bool
	wg      sync.WaitGroup
}

// NewAnalyticsScheduler builds a scheduler. conn may be nil to disable event triggers and an
// interval <= 0 disables the ticker.
func NewAnalyticsScheduler(
	analyticsService AnalyticsService,
	courses repository.CourseRepository,
	conn *nats.Conn,
	subjectPrefix string,
	interval, debounce time.Duration,
	logger zerolog.Logger,
) *AnalyticsScheduler {
	if debounce <= 0 {
		debounce = defaultSchedulerDebounce
	}
	return &AnalyticsScheduler{
		analytics: analyticsService,
		courses:   courses,
		conn:      conn,
		subject:   EventSubject(subjectPrefix, EventMistakesRecorded),
		interval:  interval,
		debounce:  debounce,
		logger:    logger.With().Str("component", "analytics_scheduler").Logger(),
		pending:   make(map[string]*time.Timer),
		locks:     make(map[string]*sync.Mutex),
		ctx:       context.Background(),
	}
}

// Start launches the ticker and the event subscription. Both stop when ctx is cancelled.
func (s *AnalyticsScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.interval > 0 {
		s.wg.Add(1)
		go s.tick(ctx)
	}
	if s.conn != nil {
		s.subscribe(ctx)
	}
}

// Wait stops accepting new runs and blocks until background loops and in-flight runs finish.
func (s *AnalyticsScheduler) Wait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Trigger schedules a run for courseID after the debounce window. Repeated triggers inside
// the window collapse into one run.
func (s *AnalyticsScheduler) Trigger(courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return
	}
	if timer, ok := s.pending[courseID]; ok {
		timer.Reset(s.debounce)
		return
	}
	s.pending[courseID] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.pending, courseID)
		ctx := s.ctx
		s.mu.Unlock()
		s.RunCourse(ctx, courseID)
	})
}

// RunCourse runs analytics for one course, waiting for a run already in progress.
func (s *AnalyticsScheduler) RunCourse(ctx context.Context, courseID string) {
	if !s.begin(ctx) {
		return
	}
	defer s.wg.Done()

	lock := s.courseLock(courseID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.analytics.Run(ctx, courseID); err != nil {
		s.logger.Error().Err(err).Str("course_id", courseID).Msg("scheduled analytics run failed")
	}
}

// begin registers a run with the wait group. The check and the Add share s.mu with Wait so
// no Add can race a Wait that already observed a zero counter.
func (s *AnalyticsScheduler) begin(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *AnalyticsScheduler) courseLock(courseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[courseID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[courseID] = lock
	}
	return lock
}

func (s *AnalyticsScheduler) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopPending()
			return
		case <-ticker.C:
			courses, err := s.courses.List(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to list courses for scheduled analytics")
				continue
			}
			for _, course := range courses {
				s.RunCourse(ctx, course.ID)
			}
		}
	}
}

func (s *AnalyticsScheduler) subscribe(ctx context.Context) {
	sub, err := s.conn.QueueSubscribe(s.subject, schedulerQueueGroup, func(msg *nats.Msg) {
		if msg.Header != nil {
			s.logger.Debug().Str("correlation_id", msg.Header.Get(observability.CorrelationHeader)).Msg("mistakes recorded event received")
		}
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subject", s.subject).Msg("failed to subscribe to mistake events")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain analytics subscription")
		}
		s.stopPending()
	}()
}

func (s *AnalyticsScheduler) handleEvent(payload []byte) {
	var event MistakesRecordedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid mistakes recorded event payload")
		return
	}
	if event.CourseID == "" {
		return
	}
	s.Trigger(event.CourseID)
}

func (s *AnalyticsScheduler) stopPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for courseID, timer := range s.pending {
		timer.Stop()
		delete(s.pending, courseID)
	}
}
