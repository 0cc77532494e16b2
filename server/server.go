// Package server exposes the clustering engine over HTTP.
//
// It is the only integration layer of kstep: it decodes the wire request,
// applies admission control and a per-request timeout, calls Engine.Run and
// encodes the result. No state is kept between requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/kstep"
	"github.com/hupe1980/kstep/codec"
	"github.com/hupe1980/kstep/resource"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"
)

// Response headers carrying run details that are not part of the JSON body.
const (
	HeaderRequestID  = "X-Request-Id"
	HeaderIterations = "X-Kstep-Iterations"
	HeaderConverged  = "X-Kstep-Converged"
	HeaderSeed       = "X-Kstep-Seed"
)

var (
	errRateLimited = errors.New("rate limit exceeded")
	errOverloaded  = errors.New("server is at capacity, retry later")
	errTimeout     = errors.New("clustering run exceeded the request timeout")
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for the server and its engine.
func WithLogger(l *kstep.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the Prometheus metrics for the server and its engine.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server handles clustering requests.
type Server struct {
	cfg     Config
	codec   codec.Codec
	engine  *kstep.Engine
	ctrl    *resource.Controller
	logger  *kstep.Logger
	metrics *Metrics
	handler http.Handler
}

// New creates a Server from cfg. Zero fields take their DefaultConfig value.
func New(cfg Config, optFns ...Option) (*Server, error) {
	cfg = cfg.withDefaults()

	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	policy, err := kstep.ParseEmptyClusterPolicy(cfg.EmptyClusterPolicy)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		codec:  c,
		logger: kstep.NoopLogger(),
		ctrl: resource.NewController(resource.Config{
			MemoryLimitBytes:  cfg.MemoryLimitBytes,
			MaxConcurrentRuns: cfg.MaxConcurrentRuns,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(s)
		}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	s.engine = kstep.New(
		kstep.WithMaxIterations(cfg.MaxIterations),
		kstep.WithTolerance(cfg.Tolerance),
		kstep.WithEmptyClusterPolicy(policy),
		kstep.WithLogger(s.logger),
		kstep.WithMetricsCollector(s.metrics),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /kmeans", s.handleKMeans)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	s.handler = gzhttp.GzipHandler(mux)

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on cfg.Addr and serves until ctx is done, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is like Run but accepts connections on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.InfoContext(ctx, "listening", "addr", ln.Addr().String(), "codec", s.codec.Name())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.InfoContext(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleKMeans(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	reqID := r.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, reqID)
	logger := s.logger.WithRequestID(reqID)

	code := s.serveKMeans(w, r, logger)
	s.metrics.observeRequest(code, time.Since(start))
	logger.DebugContext(r.Context(), "request served",
		"status", code,
		"duration", time.Since(start),
	)
}

func (s *Server) serveKMeans(w http.ResponseWriter, r *http.Request, logger *kstep.Logger) int {
	ctx := r.Context()

	if !s.ctrl.Allow() {
		return s.writeError(w, http.StatusTooManyRequests, errRateLimited)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", mbe.Limit))
		}
		return s.writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
	}

	req, err := s.codec.DecodeRequest(body)
	if err != nil {
		return s.writeError(w, http.StatusBadRequest, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	if err := req.Validate(); err != nil {
		logger.LogRejected(ctx, err)
		s.metrics.RecordRejected(err)
		return s.writeError(w, http.StatusBadRequest, err)
	}

	ticket, err := s.ctrl.Admit(ctx, resource.Cost{
		Points:        len(req.Points),
		Clusters:      req.NClusters,
		Dimension:     req.Dimension(),
		MaxIterations: s.engine.MaxIterations(),
	})
	switch {
	case err == nil:
	case errors.Is(err, resource.ErrExceedsBudget):
		return s.writeError(w, http.StatusRequestEntityTooLarge, err)
	default:
		logger.WarnContext(ctx, "run not admitted", "error", err)
		return s.writeError(w, http.StatusServiceUnavailable, errOverloaded)
	}
	s.metrics.observeResources(s.ctrl)
	res, err := s.engine.Run(ctx, req)
	ticket.Release()
	s.metrics.observeResources(s.ctrl)

	switch {
	case err == nil:
	case errors.Is(err, kstep.ErrValidation):
		return s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		return s.writeError(w, http.StatusGatewayTimeout, errTimeout)
	default:
		// The client went away; nobody reads the answer.
		logger.InfoContext(ctx, "clustering run abandoned", "error", err)
		return s.writeError(w, http.StatusServiceUnavailable, err)
	}

	data, err := s.codec.EncodeResult(res)
	if err != nil {
		return s.writeError(w, http.StatusInternalServerError, err)
	}

	h := w.Header()
	h.Set("Content-Type", codec.ContentType)
	h.Set(HeaderIterations, strconv.Itoa(res.Iterations()))
	h.Set(HeaderConverged, strconv.FormatBool(res.Converged))
	if m, err := kstep.ParseInitMethod(string(req.InitMethod)); err == nil && m.Seeded() {
		h.Set(HeaderSeed, strconv.FormatInt(res.Seed, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.DebugContext(ctx, "write response failed", "error", err)
	}
	return http.StatusOK
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) int {
	w.Header().Set("Content-Type", codec.ContentType)
	w.WriteHeader(code)
	_, _ = w.Write(s.codec.EncodeError(err))
	return code
}
