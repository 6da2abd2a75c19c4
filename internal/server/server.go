// Package server assembles the HTTP listener, the pub/sub bus lifecycle,
// and the worker pool into one Run/Shutdown unit, grounded on the teacher's
// internal/adapters/rpc/server_impl.go Server.Run (context.Done-driven
// shutdown racing a buffered error channel from the listener goroutine),
// generalized with golang.org/x/sync/errgroup to also own the pub/sub
// bus's own Start/Stop lifecycle alongside the listener.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"glkdc.dev/glkdcd/internal/pubsub"
	"glkdc.dev/glkdcd/internal/server/workerpool"
)

const shutdownTimeout = 5 * time.Second

// Server owns an HTTP listener, the pub/sub bus, and a worker pool; Run
// starts the bus and the listener, blocks until ctx is cancelled or the
// listener fails, and then shuts all three down. Request handlers are not
// dispatched through Pool.
type Server struct {
	HTTP *http.Server
	Bus  pubsub.Bus
	Pool *workerpool.Pool
}

// Run starts the pub/sub bus, serves HTTP, and blocks until ctx is done or
// the listener returns a non-graceful error.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Bus.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.HTTP.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	httpErr := s.HTTP.Shutdown(shutdownCtx)
	poolErr := s.Pool.Shutdown(shutdownCtx)
	s.Bus.Stop()

	if httpErr != nil {
		return httpErr
	}
	return poolErr
}
