package catalog

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/catalog-authz/internal/authz"
	"github.com/vyrodovalexey/catalog-authz/internal/observability"
	"github.com/vyrodovalexey/catalog-authz/internal/route"
)

// Route templates served by the handler.
const (
	TemplateListProducts = "/product"
	TemplateGetProduct   = "/product/{id}"
)

var (
	notFoundBody  = gin.H{"message": "Not Found"}
	forbiddenBody = gin.H{"message": "Forbidden"}
)

// Handler serves the product reads. It must run behind the authorization
// gate; a request without a grant is refused.
type Handler struct {
	store  *Store
	shaper *Shaper
	logger observability.Logger
}

// NewHandler creates a handler.
func NewHandler(store *Store, shaper *Shaper, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if shaper == nil {
		shaper = NewShaper(nil, logger)
	}
	return &Handler{store: store, shaper: shaper, logger: logger}
}

// Register mounts the product routes on r and returns them for route table
// validation.
func (h *Handler) Register(r gin.IRoutes) []route.Declared {
	r.GET(route.GinPath(TemplateListProducts), h.ListProducts)
	r.GET(route.GinPath(TemplateGetProduct), h.GetProduct)

	return []route.Declared{
		{Method: http.MethodGet, Template: TemplateListProducts},
		{Method: http.MethodGet, Template: TemplateGetProduct},
	}
}

// ListProducts answers GET /product with the visible products.
func (h *Handler) ListProducts(c *gin.Context) {
	grant, ok := h.grant(c)
	if !ok {
		return
	}

	all := h.store.List()
	visibility := h.shaper.ListVisibility(c.Request.Context(), grant, all)
	products := visibility.Filter(all)

	h.logger.WithContext(c.Request.Context()).Debug("listing products",
		observability.String("subject", grant.Principal.SubjectID()),
		observability.Int("count", len(products)),
		observability.String("publisher", visibility.Publisher),
		observability.Bool("premium", visibility.Premium),
		observability.Int("granted_books", len(visibility.Books)),
	)

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// GetProduct answers GET /product/{id}. Products outside the principal's
// visibility are reported as not found.
func (h *Handler) GetProduct(c *gin.Context) {
	grant, ok := h.grant(c)
	if !ok {
		return
	}

	product, found := h.store.Get(grant.Resource.ID)
	if !found || !h.shaper.Visibility(c.Request.Context(), grant).Allows(product) {
		c.JSON(http.StatusNotFound, notFoundBody)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (h *Handler) grant(c *gin.Context) (*authz.Grant, bool) {
	grant, ok := authz.GrantFromContext(c.Request.Context())
	if !ok || grant.Principal == nil {
		h.logger.WithContext(c.Request.Context()).Error("product handler reached without authorization",
			observability.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, forbiddenBody)
		return nil, false
	}
	return grant, true
}
