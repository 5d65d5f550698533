package core

import (
	"context"
	"fmt"
	"time"
)

type SweepResult struct {
	ExpiredRequests int
	DefaultedLoans  int
}

// RunSweepOnce performs a single maintenance pass: expiring overdue
// verification requests and defaulting matured loans.
func (s *Service) RunSweepOnce(ctx context.Context) (SweepResult, error) {
	if s == nil {
		return SweepResult{}, fmt.Errorf("core: service is nil")
	}
	now := s.now()

	expired, err := s.SweepExpiredVerifications(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}
	defaulted, err := s.MarkOverdueLoansDefaulted(ctx, now)
	if err != nil {
		return SweepResult{ExpiredRequests: len(expired)}, err
	}
	return SweepResult{
		ExpiredRequests: len(expired),
		DefaultedLoans:  len(defaulted),
	}, nil
}

type SweepRunnerOptions struct {
	Interval time.Duration
}

// SweepRunner drives the maintenance pass on a fixed interval until its
// context is cancelled.
type SweepRunner struct {
	service  *Service
	interval time.Duration
}

func NewSweepRunner(service *Service, opts SweepRunnerOptions) (*SweepRunner, error) {
	if service == nil {
		return nil, fmt.Errorf("core: sweep runner requires a service")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = service.Config().Verification.SweepInterval
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SweepRunner{service: service, interval: interval}, nil
}

// Run blocks until ctx is cancelled. Sweep failures are logged and the
// loop keeps going; a broken pass must not stop future passes.
func (r *SweepRunner) Run(ctx context.Context) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("core: sweep runner is not configured")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.service.RunSweepOnce(ctx); err != nil {
				r.service.logError(ctx, "sweep pass failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}
