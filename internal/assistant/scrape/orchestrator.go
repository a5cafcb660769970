// Package scrape runs background web scrapes, at most one per in-flight key,
// and decides when an answer is weak enough to need one.
package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"rag-assistant/internal/assistant/inflight"
	"rag-assistant/internal/clients/scraper"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/common/metrics"
	"rag-assistant/internal/models"

	"github.com/google/uuid"
)

// finalizeTimeout bounds the outcome write and marker release after a scrape.
const finalizeTimeout = 10 * time.Second

// Scraper is the external scraper service.
type Scraper interface {
	Scrape(ctx context.Context, query, sessionID string) (*scraper.Response, error)
}

// Status describes a scrape already running for a key.
type Status struct {
	InProgress bool
	StartedAt  time.Time
	Elapsed    time.Duration
}

// ElapsedSeconds rounds Elapsed to whole seconds.
func (s Status) ElapsedSeconds() int {
	return int(s.Elapsed.Round(time.Second) / time.Second)
}

type Orchestrator struct {
	scraper Scraper
	tracker inflight.Tracker
	turns   models.TurnRepository
	logger  logger.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewOrchestrator(s Scraper, tracker inflight.Tracker, turns models.TurnRepository, timeout time.Duration, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		scraper: s,
		tracker: tracker,
		turns:   turns,
		logger:  log.With(map[string]interface{}{"component": "scrape"}),
		timeout: timeout,
		now:     time.Now,
	}
}

// Status reports whether a scrape is running for the session and query.
func (o *Orchestrator) Status(ctx context.Context, sessionID, query string) (Status, error) {
	started, held, err := o.tracker.Get(ctx, inflight.Key(sessionID, query))
	if err != nil || !held {
		return Status{}, err
	}
	return Status{InProgress: true, StartedAt: started, Elapsed: o.now().Sub(started)}, nil
}

// Job is a claimed scrape that has not been started yet.
type Job struct {
	o         *Orchestrator
	key       string
	sessionID string
	query     string
	started   time.Time
}

// Claim atomically takes the in-flight marker for the session and query.
// When another scrape holds it, job is nil and st describes the holder.
func (o *Orchestrator) Claim(ctx context.Context, sessionID, query string) (*Job, Status, error) {
	key := inflight.Key(sessionID, query)
	acquired, started, err := o.tracker.TryAcquire(ctx, key)
	if err != nil {
		return nil, Status{}, err
	}
	if !acquired {
		return nil, Status{InProgress: true, StartedAt: started, Elapsed: o.now().Sub(started)}, nil
	}
	return &Job{o: o, key: key, sessionID: sessionID, query: query, started: started}, Status{}, nil
}

// Start runs the scrape in a detached goroutine. The request context is not
// used: the scrape outlives the request that started it.
func (j *Job) Start() {
	j.o.wg.Add(1)
	metrics.ScrapesStarted.Inc()
	metrics.ScrapesInFlight.Inc()
	j.o.logger.Info("scrape started", map[string]interface{}{
		"sessionId": j.sessionID,
		"key":       j.key,
	})
	go j.run()
}

func (j *Job) run() {
	outcome := OutcomeFailed
	start := j.o.now()
	defer func() {
		if r := recover(); r != nil {
			j.o.logger.Error("scrape panicked", map[string]interface{}{
				"key":   j.key,
				"panic": fmt.Sprint(r),
			})
			outcome = OutcomeFailed
		}
		j.finish(outcome, j.o.now().Sub(start))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), j.o.timeout)
	defer cancel()

	res, err := j.o.scraper.Scrape(ctx, j.query, j.sessionID)
	if err != nil {
		j.o.logger.Warn("scrape failed", map[string]interface{}{
			"key":   j.key,
			"error": err.Error(),
		})
		return
	}
	outcome = classify(res)
}

// finish appends the outcome turn and releases the marker. It runs on every
// exit path of run.
func (j *Job) finish(outcome Outcome, took time.Duration) {
	defer j.o.wg.Done()
	defer metrics.ScrapesInFlight.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	turn := models.ConversationTurn{
		ID:        uuid.NewString(),
		SessionID: j.sessionID,
		Role:      models.RoleAssistant,
		Message:   OutcomeMessage(j.query, outcome),
		CreatedAt: j.o.now().UTC(),
	}
	if err := j.o.turns.AppendTurns(ctx, turn); err != nil {
		j.o.logger.Error("failed to save scrape outcome", map[string]interface{}{
			"sessionId": j.sessionID,
			"error":     err.Error(),
		})
	}

	if err := j.o.tracker.Release(ctx, j.key, j.started); err != nil {
		j.o.logger.Error("failed to release scrape marker", map[string]interface{}{
			"key":   j.key,
			"error": err.Error(),
		})
	}

	metrics.ScrapesFinished.WithLabelValues(string(outcome)).Inc()
	j.o.logger.Info("scrape finished", map[string]interface{}{
		"sessionId":  j.sessionID,
		"outcome":    string(outcome),
		"durationMs": took.Milliseconds(),
	})
}

// Wait blocks until every started scrape has finished or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classify(res *scraper.Response) Outcome {
	if res == nil || res.NewURLs <= 0 {
		return OutcomeNone
	}
	if strings.Contains(strings.ToLower(res.Message), noNewResults) {
		return OutcomeNone
	}
	return OutcomeFound
}
