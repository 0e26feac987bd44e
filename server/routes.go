package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// Journey routes called by the front end
	s.RegisterRouteHandler("POST "+RouteSession, ChainMiddleware(s.CreateSession(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteClaimedIdentity, ChainMiddleware(s.ClaimedIdentity(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthorization, ChainMiddleware(s.Authorization(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAbort, ChainMiddleware(s.Abort(), s.APIMiddleware()...))

	// OAuth2 routes called back channel by the relying party
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// Preflight for every route; CorsMiddleware answers it
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.Preflight(), s.CorsMiddleware))

	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())
	s.RegisterRouteFunc("GET "+RouteHealthcheck, s.Healthcheck())
}
