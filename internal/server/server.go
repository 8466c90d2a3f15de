// Package server implements the admin/introspection HTTP surface for the
// daemon: read-only visibility into the Protocol/Interface/Target tree
// plus a forced-flush operation, served alongside the Prometheus
// handler from internal/metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/oonf-project/rfc5444d/internal/rfc5444"
)

// Sentinel errors for the server package.
var (
	// ErrMissingAddress indicates a target lookup with no address in the path.
	ErrMissingAddress = errors.New("address must be provided")
)

// AggregationTimers supplies the admin surface a way to force an
// immediate flush of a target's pending packets, decoupling the server
// from whatever owns the timer lifecycle (the daemon's main loop).
type AggregationTimers interface {
	FlushTarget(ctx context.Context, protocolName string, target *rfc5444.Target) error
}

// Server is the admin HTTP handler. It is a thin, read-mostly adapter
// over a *rfc5444.Registry; every RPC here mirrors olsr_telnet's "/plugin"
// debug commands in spirit (list protocols, list targets, force a flush)
// but speaks JSON over plain HTTP instead of a line-oriented console.
type Server struct {
	registry *rfc5444.Registry
	timers   AggregationTimers
	logger   *slog.Logger
}

// New creates a Server and returns the http.Handler to mount (callers
// decide the path prefix, typically "/"; promhttp.Handler() is mounted
// separately at "/metrics" by the caller).
func New(reg *rfc5444.Registry, timers AggregationTimers, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: reg,
		timers:   timers,
		logger:   logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /protocols", s.listProtocols)
	mux.HandleFunc("GET /protocols/{name}/targets", s.listTargets)
	mux.HandleFunc("POST /protocols/{name}/targets/{addr}/flush", s.flushTarget)

	return recoveryMiddleware(s.logger, loggingMiddleware(s.logger, mux))
}

type protocolView struct {
	Name                string   `json:"name"`
	AggregationInterval string   `json:"aggregation_interval"`
	MTU                 int      `json:"mtu"`
	Interfaces          []string `json:"interfaces"`
}

func (s *Server) listProtocols(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		p, ok := s.registry.Protocol(name)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("protocol %q: %w", name, rfc5444.ErrNoSuchProtocol))
			return
		}
		writeJSON(w, http.StatusOK, protocolToView(p))
		return
	}

	protocols := s.registry.Protocols()
	views := make([]protocolView, 0, len(protocols))
	for _, p := range protocols {
		views = append(views, protocolToView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

type targetView struct {
	Address string `json:"address"`
	Active  bool   `json:"active"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.registry.Protocol(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("protocol %q: %w", name, rfc5444.ErrNoSuchProtocol))
		return
	}

	var views []targetView
	for _, ifname := range p.Interfaces() {
		iface, ok := p.Interface(ifname)
		if !ok {
			continue
		}
		for _, t := range iface.Targets() {
			views = append(views, targetView{Address: t.Addr.String(), Active: t.Active()})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) flushTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	addrStr := r.PathValue("addr")
	if addrStr == "" {
		writeError(w, http.StatusBadRequest, ErrMissingAddress)
		return
	}

	p, ok := s.registry.Protocol(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("protocol %q: %w", name, rfc5444.ErrNoSuchProtocol))
		return
	}
	addr, err := netip.ParseAddr(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse address %q: %w", addrStr, err))
		return
	}

	var found *rfc5444.Target
	for _, ifname := range p.Interfaces() {
		iface, ok := p.Interface(ifname)
		if !ok {
			continue
		}
		if t, ok := iface.Target(addr); ok {
			found = t
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("target %s: %w", addr, rfc5444.ErrNoSuchTarget))
		return
	}

	if s.timers != nil {
		if err := s.timers.FlushTarget(r.Context(), name, found); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("flush target %s: %w", addr, err))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func protocolToView(p *rfc5444.Protocol) protocolView {
	return protocolView{
		Name:                p.Name,
		AggregationInterval: p.AggregationInterval.String(),
		MTU:                 p.MTU,
		Interfaces:          p.Interfaces(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// loggingMiddleware logs every request with its path, status, and
// duration. Status is Info for 2xx/3xx, Warn otherwise.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", duration),
		}
		if sw.status >= 400 {
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed with error", attrs...)
		} else {
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
