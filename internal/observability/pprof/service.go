// Package pprof exposes the optional debug HTTP endpoint.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	logx "rotabot/pkg/logx"
)

const defaultAddr = "127.0.0.1:6060"

// Config controls the debug server. Binding beyond loopback requires a
// token unless AllowInsecure is set explicitly.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if !s.exposureAllowed(addr) {
		return
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go s.serve(s.srv, ln)
	s.log.Info("pprof started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""))
}

// exposureAllowed enforces the loopback guard before anything listens.
func (s *Service) exposureAllowed(addr string) bool {
	if isLoopbackAddr(addr) || s.cfg.Token != "" {
		return true
	}
	if s.cfg.AllowInsecure {
		s.log.Warn("pprof on non-loopback addr without token", logx.String("addr", addr))
		return true
	}
	s.log.Error("pprof refused to start: non-loopback addr needs token or allow_insecure",
		logx.String("addr", addr))
	return false
}

func (s *Service) routes() http.Handler {
	tok := s.cfg.Token
	mux := http.NewServeMux()
	add := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.withAuth(tok, h))
	}
	add("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	add("/debug/pprof/", hpprof.Index)
	add("/debug/pprof/cmdline", hpprof.Cmdline)
	add("/debug/pprof/profile", hpprof.Profile)
	add("/debug/pprof/symbol", hpprof.Symbol)
	add("/debug/pprof/trace", hpprof.Trace)
	return mux
}

func (s *Service) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("pprof server stopped with error", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, ln := s.srv, s.ln
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if ln != nil {
		_ = ln.Close()
	}
	_ = srv.Shutdown(ctx)
	_ = srv.Close()
	s.log.Info("pprof stopped")
}

// withAuth gates h behind the token, via either a Bearer header or a
// ?token= query parameter. An empty token disables the gate.
func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenFromRequest(r) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func tokenFromRequest(r *http.Request) string {
	if q := r.URL.Query().Get("token"); q != "" {
		return q
	}
	const bearer = "Bearer "
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, bearer) {
		return strings.TrimSpace(ah[len(bearer):])
	}
	return ""
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
