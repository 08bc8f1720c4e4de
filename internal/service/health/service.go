package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of a single dependency or the service as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// Report is the aggregate health response.
type Report struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one dependency. A nil return means healthy.
type Checker func(ctx context.Context) error

// Service aggregates dependency probes into a readiness report. Probes
// run concurrently with a per-probe timeout so one hung dependency does
// not stall the whole endpoint.
type Service struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	critical  map[string]bool
	startTime time.Time
	version   string
	timeout   time.Duration
	log       *zap.Logger
}

func NewService(version string, log *zap.Logger) *Service {
	return &Service{
		checkers:  make(map[string]Checker),
		critical:  make(map[string]bool),
		startTime: time.Now(),
		version:   version,
		timeout:   2 * time.Second,
		log:       log,
	}
}

// Register adds a dependency probe. Critical probes gate readiness;
// non-critical ones only degrade the report.
func (s *Service) Register(name string, critical bool, check Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = check
	s.critical[name] = critical
}

// Check runs every registered probe and aggregates the results.
func (s *Service) Check(ctx context.Context) Report {
	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checkers[name] = c
	}
	s.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checkers {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			result := s.run(ctx, name, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return Report{
		Status:    s.aggregate(results),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

// Ready reports whether every critical dependency is healthy.
func (s *Service) Ready(ctx context.Context) (bool, Report) {
	report := s.Check(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, result := range report.Checks {
		if s.critical[name] && result.Status != StatusHealthy {
			return false, report
		}
	}
	return true, report
}

func (s *Service) run(ctx context.Context, name string, check Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	result := CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		s.log.Warn("health check failed",
			zap.String("check", name),
			zap.Error(err),
		)
	}
	return result
}

func (s *Service) aggregate(results map[string]CheckResult) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := StatusHealthy
	for name, result := range results {
		if result.Status != StatusUnhealthy {
			continue
		}
		if s.critical[name] {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}
