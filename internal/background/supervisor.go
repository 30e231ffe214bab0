package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// NewSupervisor builds the root supervisor for long-running workers.
// Restarts are logged through sutureslog.
func NewSupervisor(logger *slog.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	handler := &sutureslog.Handler{Logger: logger}

	return suture.New("mailguard", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}

// HTTPServer is the subset of *http.Server the supervisor drives
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server under the supervisor
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewHTTPServerService wraps server for supervision
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration, logger *slog.Logger) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout, logger: logger}
}

// Serve listens until ctx is cancelled, then shuts the server down gracefully
func (s *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		s.logger.Info("server stopped gracefully")
		return ctx.Err()
	}
}

func (s *HTTPServerService) String() string {
	return "http-server"
}
