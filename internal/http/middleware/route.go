package middleware

import "github.com/gin-gonic/gin"

const unmatchedRoute = "unmatched"

// Probes and scrapes arrive every few seconds; they are logged at debug level only.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
	"/metrics":     true,
}

// routeLabel is the registered route template, never the raw path, so session ids do not end up
// in metric labels.
func routeLabel(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return unmatchedRoute
}
