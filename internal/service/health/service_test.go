package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

func TestCheck_AllHealthy(t *testing.T) {
	// Arrange
	svc := NewService("v1.0.0", newTestLogger())
	svc.Register("database", true, func(ctx context.Context) error { return nil })
	svc.Register("cache", false, func(ctx context.Context) error { return nil })

	// Act
	report := svc.Check(context.Background())

	// Assert
	if report.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", report.Status, StatusHealthy)
	}
	if len(report.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(report.Checks))
	}
	if report.Version != "v1.0.0" {
		t.Errorf("version = %q, want v1.0.0", report.Version)
	}
}

func TestReady_CriticalFailureBlocksReadiness(t *testing.T) {
	// Arrange
	svc := NewService("v1.0.0", newTestLogger())
	svc.Register("database", true, func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	svc.Register("cache", false, func(ctx context.Context) error { return nil })

	// Act
	ready, report := svc.Ready(context.Background())

	// Assert
	if ready {
		t.Error("Ready() = true with a failing critical dependency")
	}
	if report.Status != StatusUnhealthy {
		t.Errorf("status = %s, want %s", report.Status, StatusUnhealthy)
	}
	if report.Checks["database"].Message == "" {
		t.Error("failing check carries no message")
	}
}

func TestReady_NonCriticalFailureOnlyDegrades(t *testing.T) {
	// Arrange
	svc := NewService("v1.0.0", newTestLogger())
	svc.Register("database", true, func(ctx context.Context) error { return nil })
	svc.Register("cache", false, func(ctx context.Context) error {
		return errors.New("redis down")
	})

	// Act
	ready, report := svc.Ready(context.Background())

	// Assert
	if !ready {
		t.Error("Ready() = false although every critical dependency is healthy")
	}
	if report.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", report.Status, StatusDegraded)
	}
}

func TestCheck_HungProbeTimesOut(t *testing.T) {
	// Arrange
	svc := NewService("v1.0.0", newTestLogger())
	svc.timeout = 20 * time.Millisecond
	svc.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	// Act
	start := time.Now()
	report := svc.Check(context.Background())

	// Assert
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Check() took %v, probe timeout not applied", elapsed)
	}
	if report.Checks["slow"].Status != StatusUnhealthy {
		t.Errorf("slow probe status = %s, want %s", report.Checks["slow"].Status, StatusUnhealthy)
	}
}
