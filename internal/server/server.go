// Package server is the gridwire admin HTTP surface: health, metrics, the
// loaded message catalog, an ad-hoc datagram decoder, captures and peers.
//
// The server only reads shared state. The codec and peer table are owned
// by the circuit endpoint and the capture store by the serve command.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/danmuck/gridwire/internal/circuit"
	"github.com/danmuck/gridwire/internal/observability"
	"github.com/danmuck/gridwire/internal/protocol"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

// Captures is the read side of a capture store.
type Captures interface {
	List(bucket string, limit int) ([]capture.Entry, error)
	Get(bucket string, id uint64) (capture.Entry, error)
	Buckets() ([]capture.BucketInfo, error)
}

type Options struct {
	Node        string
	Addr        string
	CorsOrigins []string
	Codec       *protocol.Codec
	// Captures and Peers are optional; their routes answer 404 when nil.
	Captures Captures
	Peers    *circuit.PeerTable
}

type Server struct {
	node     string
	addr     string
	started  time.Time
	codec    *protocol.Codec
	captures Captures
	peers    *circuit.PeerTable
	router   *gin.Engine
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Node))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(opts.CorsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		node:     opts.Node,
		addr:     opts.Addr,
		started:  time.Now(),
		codec:    opts.Codec,
		captures: opts.Captures,
		peers:    opts.Peers,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until ctx is done, then shuts
// down with a short grace period.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("admin http listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
