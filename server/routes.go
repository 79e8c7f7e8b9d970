package server

func (s *Server) initRoutes() {
	// Gateway endpoints. Every authenticated entry point sits behind the
	// shared rate limiter.
	s.RegisterRouteFunc("POST "+RouteContentAccess, ChainMiddleware(s.ContentAccessHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteContentMagic, ChainMiddleware(s.MagicLinkHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteContentProgress, ChainMiddleware(s.ProgressHandler(), s.APIMiddleware()...))

	// SSO authorization-code flow: out to the provider, back through the
	// callback and into the content player.
	s.RegisterRouteFunc("GET "+RouteSSOStart, ChainMiddleware(s.SSOLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteSSOCallback, ChainMiddleware(s.SSOCallbackHandler(), s.APIMiddleware()...))

	// Link issuance for the campaign system, behind the admin API key.
	s.RegisterRouteFunc("POST "+RouteAdminLinks, ChainMiddleware(s.AdminIssueLinkHandler(), s.LoggingMiddleware, s.RecoverMiddleware))

	// Denial and error pages the gateway redirects browsers to.
	s.RegisterRouteFunc("GET "+RouteAuthLogin, s.LoginPageHandler())
	s.RegisterRouteFunc("GET "+RouteAccessDenied, s.AccessDeniedHandler())
	s.RegisterRouteFunc("GET "+RouteError, s.ErrorPageHandler())

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
