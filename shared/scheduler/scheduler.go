package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"comment-responder/shared/config"
	"comment-responder/shared/monitoring"

	"github.com/robfig/cron/v3"
)

// Metrics defines the common interface for agent metrics
type Metrics interface {
	// GetSummary returns a human-readable summary of the run
	GetSummary() string
}

// AgentEvents provides callbacks for monitoring agent execution
type AgentEvents struct {
	OnSuccess         func(metrics Metrics, duration time.Duration)
	OnPartialFailure  func(err error, duration time.Duration)
	OnCriticalFailure func(err error, duration time.Duration)
}

// Agent defines the interface that all agents must implement.
// A run that returns an error is recorded as a critical failure.
type Agent interface {
	Name() string
	Initialize(ctx context.Context) error
	RunOnce(ctx context.Context, events *AgentEvents) error
}

// Scheduler runs one agent on its cron schedule and feeds the outcome of
// every run to the monitor.
type Scheduler struct {
	config  *config.Config
	monitor *monitoring.Monitor
	agent   Agent
	cron    *cron.Cron

	mu    sync.Mutex
	entry cron.EntryID
}

func New(cfg *config.Config, agent Agent, monitor *monitoring.Monitor) *Scheduler {
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}

	return &Scheduler{
		config:  cfg,
		monitor: monitor,
		agent:   agent,
		// Prevent overlapping runs
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.agent.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	entry, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("Error running scheduled job for %s: %v", s.agent.Name(), err)
		}
		s.logNextRun()
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %q: %w", s.config.Schedule, err)
	}
	s.mu.Lock()
	s.entry = entry
	s.mu.Unlock()

	// Start health check server (configurable via config, defaults to 8080)
	healthServer := monitoring.NewHealthServer(s.monitor, fmt.Sprintf("%d", s.config.Monitoring.HealthPort))
	healthServer.Start()

	log.Printf("Scheduler started for %s with schedule: %s", s.agent.Name(), s.config.Schedule)
	s.cron.Start()
	s.logNextRun()

	// Keep the scheduler running indefinitely until context is cancelled
	<-ctx.Done()
	log.Printf("Scheduler stopped for %s", s.agent.Name())
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	startTime := time.Now()
	agentName := s.agent.Name()

	log.Printf("Starting %s run...", agentName)

	// Create event handlers for monitoring
	events := &AgentEvents{
		OnSuccess: func(metrics Metrics, duration time.Duration) {
			s.monitor.RecordSuccess(metrics.GetSummary(), duration)
		},
		OnPartialFailure: func(err error, duration time.Duration) {
			s.monitor.RecordPartialFailure(fmt.Errorf("%s partial failure: %w", agentName, err), duration)
		},
		OnCriticalFailure: func(err error, duration time.Duration) {
			s.monitor.RecordCriticalFailure(fmt.Errorf("%s critical failure: %w", agentName, err), duration)
		},
	}

	if err := s.agent.RunOnce(ctx, events); err != nil {
		events.OnCriticalFailure(err, time.Since(startTime))
		return fmt.Errorf("%s run failed: %w", agentName, err)
	}

	return nil
}

// NextRun is when the agent is next due, or the zero time before Start.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	entry := s.entry
	s.mu.Unlock()

	if entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(entry).Next
}

func (s *Scheduler) logNextRun() {
	if next := s.NextRun(); !next.IsZero() {
		log.Printf("Next %s run at %s", s.agent.Name(), next.Format("Jan 2 15:04 MST"))
	}
}
