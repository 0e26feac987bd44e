package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/claimed-identity-cri/cri"
	"github.com/jrsteele09/claimed-identity-cri/internal/config"
	"github.com/jrsteele09/claimed-identity-cri/jose"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// KeyPublisher supplies the issuer's public keys for the JWKS endpoint
type KeyPublisher interface {
	PublicJWKS(ctx context.Context) (*jose.JWKS, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	cri    *cri.Service
	keys   KeyPublisher
	store  Pinger
}

type Option func(*Server)

// WithHealthCheck makes /healthcheck fail while the store is unreachable
func WithHealthCheck(store Pinger) Option {
	return func(s *Server) {
		s.store = store
	}
}

func New(config config.Config, service *cri.Service, keys KeyPublisher, options ...Option) (*Server, error) {
	if config == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if service == nil {
		return nil, errors.New("[Server New] service is required")
	}
	if keys == nil {
		return nil, errors.New("[Server New] key publisher is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		config: config,
		cri:    service,
		keys:   keys,
	}
	s.env = config.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// clientIP prefers the first X-Forwarded-For hop since the service runs behind a load balancer
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
