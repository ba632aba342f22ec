package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownGrace = 2 * time.Second

// Server serves a Service over gRPC and HTTP on a single listener.
type Server struct {
	svc  *Service
	grpc *grpc.Server
	http *http.Server
}

// NewServer returns a Server for b.
func NewServer(b Bridge) *Server {
	svc := NewService(b)
	gs := grpc.NewServer()
	svc.Register(gs)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", svc.handleStatus)

	return &Server{
		svc:  svc,
		grpc: gs,
		http: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Serve blocks until ctx is done or a server fails. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())

	var closing atomic.Bool
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(s.grpc.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(s.http.Serve(httpL)) })
	g.Go(func() error {
		err := m.Serve()
		if closing.Load() {
			return nil
		}
		return ignoreClosed(err)
	})
	g.Go(func() error {
		<-ctx.Done()
		closing.Store(true)

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.http.Shutdown(sctx); err != nil {
			slog.Debug("control http shutdown", "err", err)
		}
		s.grpc.Stop()
		return ln.Close()
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (svc *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromSnapshot(svc.b.Snapshot())); err != nil {
		slog.Debug("control status write", "err", err)
	}
}

func ignoreClosed(err error) error {
	switch {
	case err == nil,
		errors.Is(err, net.ErrClosed),
		errors.Is(err, cmux.ErrListenerClosed),
		errors.Is(err, http.ErrServerClosed),
		errors.Is(err, grpc.ErrServerStopped):
		return nil
	}
	return err
}
