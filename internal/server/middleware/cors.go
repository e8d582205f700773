package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS headers.
const (
	HeaderOrigin                  = "Origin"
	HeaderAllowOrigin             = "Access-Control-Allow-Origin"
	HeaderAllowCredentials        = "Access-Control-Allow-Credentials"
	HeaderAllowMethods            = "Access-Control-Allow-Methods"
	HeaderAllowHeaders            = "Access-Control-Allow-Headers"
	HeaderMaxAge                  = "Access-Control-Max-Age"
	HeaderVary                    = "Vary"
	defaultPreflightMaxAgeSeconds = 600
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a list of origins that may access the resource.
	// Use "*" to allow all origins.
	AllowOrigins []string

	// AllowMethods is a list of methods allowed when accessing the resource.
	AllowMethods []string

	// AllowHeaders is a list of headers that can be used when making the actual request.
	AllowHeaders []string

	// AllowCredentials indicates whether the request can include user credentials.
	AllowCredentials bool

	// MaxAge indicates how long the results of a preflight request can be cached.
	MaxAge int
}

// CatalogCORSConfig returns the CORS policy of the catalog API: a single
// origin, read-only methods and the headers the API gateway forwards.
func CatalogCORSConfig(origin string) CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{origin},
		AllowMethods:     []string{http.MethodOptions, http.MethodGet},
		AllowHeaders:     []string{"Content-Type", "X-Amz-Date", "Authorization"},
		AllowCredentials: true,
		MaxAge:           defaultPreflightMaxAgeSeconds,
	}
}

type corsContext struct {
	config          CORSConfig
	allowAllOrigins bool
	allowMethodsStr string
	allowHeadersStr string
	maxAgeStr       string
}

func newCORSContext(config CORSConfig) *corsContext {
	allowAll := false
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}

	return &corsContext{
		config:          config,
		allowAllOrigins: allowAll,
		allowMethodsStr: strings.Join(config.AllowMethods, ","),
		allowHeadersStr: strings.Join(config.AllowHeaders, ","),
		maxAgeStr:       strconv.Itoa(config.MaxAge),
	}
}

func (ctx *corsContext) allowed(origin string) bool {
	if ctx.allowAllOrigins {
		return true
	}
	for _, o := range ctx.config.AllowOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (ctx *corsContext) setCommonHeaders(c *gin.Context, origin string) {
	if ctx.allowAllOrigins && !ctx.config.AllowCredentials {
		c.Header(HeaderAllowOrigin, "*")
	} else {
		c.Header(HeaderAllowOrigin, origin)
		c.Header(HeaderVary, HeaderOrigin)
	}
	if ctx.config.AllowCredentials {
		c.Header(HeaderAllowCredentials, "true")
	}
}

// CORSWithConfig returns a CORS middleware. Preflight requests from an
// allowed origin are answered with 204 and never reach later handlers.
// Requests from other origins continue without CORS headers.
func CORSWithConfig(config CORSConfig) gin.HandlerFunc {
	ctx := newCORSContext(config)

	return func(c *gin.Context) {
		origin := c.GetHeader(HeaderOrigin)
		if origin == "" || !ctx.allowed(origin) {
			c.Next()
			return
		}

		ctx.setCommonHeaders(c, origin)

		if c.Request.Method == http.MethodOptions {
			c.Header(HeaderAllowMethods, ctx.allowMethodsStr)
			c.Header(HeaderAllowHeaders, ctx.allowHeadersStr)
			if ctx.config.MaxAge > 0 {
				c.Header(HeaderMaxAge, ctx.maxAgeStr)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
