package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// Report is the combined result of every registered check
type Report struct {
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Checks    []CheckResult `json:"checks"`
}

// Healthy reports whether nothing is unhealthy
func (r Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Registry manages health checks
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a checker, replacing any checker with the same name
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// Names returns the registered check names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all checks concurrently. A check still running when ctx is done
// is reported unhealthy.
func (r *Registry) Check(ctx context.Context) Report {
	start := time.Now()

	r.mu.RLock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	results := make(chan CheckResult, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			results <- c.Check(ctx)
		}(c)
	}

	byName := make(map[string]CheckResult, len(checkers))
collect:
	for range checkers {
		select {
		case result := <-results:
			byName[result.Name] = result
		case <-ctx.Done():
			break collect
		}
	}

	report := Report{Status: StatusHealthy, Timestamp: time.Now()}
	for _, c := range checkers {
		result, ok := byName[c.Name()]
		if !ok {
			result = CheckResult{
				Name:      c.Name(),
				Status:    StatusUnhealthy,
				Message:   "Check timed out",
				Duration:  time.Since(start),
				Timestamp: time.Now(),
				Error:     ctx.Err().Error(),
			}
		}
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	sort.Slice(report.Checks, func(i, j int) bool {
		return report.Checks[i].Name < report.Checks[j].Name
	})
	report.Duration = time.Since(start)

	return report
}
