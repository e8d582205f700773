package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// HeaderAuthorization carries the bearer credential.
const HeaderAuthorization = "Authorization"

// Response bodies. They never reveal the denial cause.
var (
	unauthorizedBody = gin.H{"message": "Unauthorized"}
	forbiddenBody    = gin.H{"message": "Forbidden"}
)

// Middleware returns gin middleware that runs the gate before the handler.
// On Proceed the grant is stored in the request context and the chain
// continues; otherwise the request is aborted with 401 or 403.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		out := g.Authorize(c.Request.Context(), RequestFromGin(c))

		if !out.Proceed() {
			abortDenied(c, out.Err)
			return
		}

		c.Request = c.Request.WithContext(ContextWithGrant(c.Request.Context(), grantFromOutcome(out)))
		c.Next()
	}
}

// RequestFromGin builds a gate request from a gin context. The route
// template is the matched gin route, not the raw path.
func RequestFromGin(c *gin.Context) *Request {
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}

	template := ""
	if full := c.FullPath(); full != "" {
		template = route.TemplateFromGin(full)
	}

	return &Request{
		Authorization: c.GetHeader(HeaderAuthorization),
		Method:        c.Request.Method,
		RouteTemplate: template,
		PathParams:    params,
		QueryParams:   c.Request.URL.Query(),
		SourceIP:      c.ClientIP(),
	}
}

func abortDenied(c *gin.Context, denial *DenialError) {
	status := http.StatusForbidden
	if denial != nil {
		status = denial.StatusCode()
		_ = c.Error(denial)
	}

	if status == http.StatusUnauthorized {
		c.AbortWithStatusJSON(status, unauthorizedBody)
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, forbiddenBody)
}
