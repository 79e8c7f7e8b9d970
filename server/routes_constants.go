package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Content access
	RouteContentAccess   = "/content/access"
	RouteContentMagic    = "/content/magic"
	RouteContentProgress = "/content/progress"

	// Auth entry points and denial pages
	RouteAuthLogin    = "/auth/login"
	RouteSSOStart     = "/auth/sso"
	RouteSSOCallback  = "/auth/callback"
	RouteAccessDenied = "/access-denied"
	RouteError        = "/error"

	// Internal API for the campaign system
	RouteAdminLinks = "/admin/links"

	// Operational
	RouteHealth = "/healthz"
)
