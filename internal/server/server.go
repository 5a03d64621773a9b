// Package server exposes the browser pool and conversion service over
// HTTP: a POST endpoint to convert, a health check, a Prometheus scrape
// endpoint, and a websocket stream of live pool occupancy.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"html2pdf/internal/convert"
	"html2pdf/pkg/logger"
	"html2pdf/pkg/metrics"
	"html2pdf/pkg/pool"
	"html2pdf/pkg/poolerr"
)

var startTime = time.Now()

// Config configures the HTTP adapter. A zero field falls back to a default:
// no rate limit, a 16 MB body cap, convert.DefaultOptions' navigate timeout,
// and a 15s stats interval.
type Config struct {
	RequestsPerSecond  int
	RateLimitBurst     int
	MaxRequestBodyMB   int
	ConvertTimeoutSecs int
	// PoolStatsInterval controls how often the /ws/pool stream pushes a
	// snapshot. Defaults to 15s when zero.
	PoolStatsInterval time.Duration
}

// Server is the HTTP adapter in front of a convert.Service and its
// underlying pool.Pool.
type Server struct {
	cfg       Config
	pool      *pool.Pool
	converter *convert.Service
	metrics   *metrics.Collector
	log       *logger.Logger
	limiter   *rate.Limiter
	hub       *statsHub
}

// New constructs a Server. A cfg.RequestsPerSecond of zero falls back to an
// unlimited limiter (rate.Inf), matching a misconfigured YAML block failing
// open rather than rejecting all traffic. A RateLimitBurst of zero with a
// positive rate uses the rate as the burst.
func New(cfg Config, p *pool.Pool, conv *convert.Service, mc *metrics.Collector, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault()
	}

	limit := rate.Inf
	burst := cfg.RateLimitBurst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = cfg.RequestsPerSecond
		}
	}

	s := &Server{
		cfg:       cfg,
		pool:      p,
		converter: conv,
		metrics:   mc,
		log:       log,
		limiter:   rate.NewLimiter(limit, burst),
		hub:       newStatsHub(),
	}
	return s
}

// Handler builds the routed http.Handler. Call once at startup.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/convert", s.withRateLimit(s.handleConvert))
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/ws/pool", s.handleWSPool)
	return mux
}

// Start runs the pool-stats broadcaster. Call once, alongside http.Serve.
func (s *Server) Start(ctx context.Context) {
	interval := s.cfg.PoolStatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go s.hub.run(ctx, interval, s.pool.Stats)
}

func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

type convertRequest struct {
	URL             string  `json:"url,omitempty"`
	HTML            string  `json:"html,omitempty"`
	Landscape       bool    `json:"landscape,omitempty"`
	PrintBackground *bool   `json:"print_background,omitempty"`
	PaperWidth      float64 `json:"paper_width,omitempty"`
	PaperHeight     float64 `json:"paper_height,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxBytes := int64(s.cfg.MaxRequestBodyMB) << 20
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > maxBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req convertRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if (req.URL == "") == (req.HTML == "") {
		http.Error(w, "exactly one of url or html must be set", http.StatusBadRequest)
		return
	}

	opts := convert.DefaultOptions()
	opts.Landscape = req.Landscape
	if req.PrintBackground != nil {
		opts.PrintBackground = *req.PrintBackground
	}
	opts.PaperWidth = req.PaperWidth
	opts.PaperHeight = req.PaperHeight
	if s.cfg.ConvertTimeoutSecs > 0 {
		opts.NavigateTimeout = time.Duration(s.cfg.ConvertTimeoutSecs) * time.Second
	}

	ctx := r.Context()
	var pdf []byte
	if req.URL != "" {
		pdf, err = s.converter.ConvertURL(ctx, req.URL, opts)
	} else {
		pdf, err = s.converter.ConvertHTML(ctx, req.HTML, opts)
	}
	if err != nil {
		s.writeConvertError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="output.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) writeConvertError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, poolerr.ErrShuttingDown), errors.Is(err, poolerr.ErrCreationFailed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, poolerr.ErrHealthCheckFailed):
		status = http.StatusInternalServerError
	}
	s.log.Error("conversion request failed", zap.Error(err), zap.Int("status", status))
	http.Error(w, err.Error(), status)
}

type healthzResponse struct {
	Status    string      `json:"status"`
	UptimeSec float64     `json:"uptime_seconds"`
	Pool      pool.Stats  `json:"pool"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status:    "ok",
		UptimeSec: time.Since(startTime).Seconds(),
		Pool:      s.pool.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
