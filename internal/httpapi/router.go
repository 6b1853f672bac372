package httpapi

import "github.com/gin-gonic/gin"

// NewRouter builds the gin engine with all workflow routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", h.CreateDocument)
			docs.GET("/:id", h.GetDocument)
			docs.POST("/:id/submit", h.Submit)
			docs.POST("/:id/decisions", h.Decide)
			docs.POST("/:id/escalations", h.Escalate)
			docs.POST("/:id/delegations", h.Delegate)
			docs.GET("/:id/sla", h.SLAReport)
		}
	}

	return r
}
