package server

// Route path constants
const (
	// Issuer flow
	RouteSession         = "/session"
	RouteClaimedIdentity = "/claimedIdentity"
	RouteAuthorization   = "/authorization"
	RouteAbort           = "/abort"

	// OAuth2 endpoints called by the relying party
	RouteToken    = "/token"
	RouteUserInfo = "/userinfo"

	RouteWellKnownJWKS = "/.well-known/jwks.json"

	// Operations
	RouteMetrics     = "/metrics"
	RouteHealthcheck = "/healthcheck"
)

// Request headers carrying the issuer session id
const (
	HeaderSessionID        = "session-id"
	HeaderJourneySessionID = "x-govuk-signin-session-id"
)
