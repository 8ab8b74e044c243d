package serverutil

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type stubRunner struct {
	startErr   error
	stop       chan struct{}
	shutdowns  int
	shutdownFn func(ctx context.Context) error
}

func (s *stubRunner) Start() error {
	if s.stop != nil {
		<-s.stop
	}
	return s.startErr
}

func (s *stubRunner) Shutdown(ctx context.Context) error {
	s.shutdowns++
	if s.stop != nil {
		close(s.stop)
	}
	if s.shutdownFn != nil {
		return s.shutdownFn(ctx)
	}
	return nil
}

func TestRunRequiresRunner(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without runner")
	}
}

func TestRunTreatsServerClosedAsSuccess(t *testing.T) {
	runner := &stubRunner{startErr: http.ErrServerClosed}
	if err := Run(context.Background(), Config{Runner: runner}); err != nil {
		t.Fatalf("expected nil for ErrServerClosed, got %v", err)
	}
}

func TestRunPropagatesStartFailure(t *testing.T) {
	boom := errors.New("bind failed")
	runner := &stubRunner{startErr: boom}
	if err := Run(context.Background(), Config{Runner: runner}); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	runner := &stubRunner{startErr: http.ErrServerClosed, stop: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Runner: runner, Ready: ready, ShutdownTimeout: time.Second})
	}()

	<-ready
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if runner.shutdowns != 1 {
		t.Fatalf("expected one shutdown call, got %d", runner.shutdowns)
	}
}
