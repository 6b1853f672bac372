package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradeflow/approval-engine/internal/application/engine"
	"github.com/tradeflow/approval-engine/internal/application/port"
	"github.com/tradeflow/approval-engine/internal/application/sla"
	"github.com/tradeflow/approval-engine/internal/domain/document"
)

// Handler exposes the workflow engine over HTTP. It owns the mapping
// from the engine's error taxonomy to transport status codes; the engine
// itself is transport-agnostic.
type Handler struct {
	engine  engine.Engine
	store   port.DocumentStore
	monitor *sla.Monitor
	logger  *zap.Logger
}

// NewHandler creates an HTTP handler over the engine and its read model.
func NewHandler(eng engine.Engine, store port.DocumentStore, monitor *sla.Monitor, logger *zap.Logger) *Handler {
	return &Handler{
		engine:  eng,
		store:   store,
		monitor: monitor,
		logger:  logger,
	}
}

type createDocumentRequest struct {
	Kind          string                 `json:"kind" binding:"required"`
	Amount        decimal.Decimal        `json:"amount" binding:"required"`
	CriteriaFlags map[string]interface{} `json:"criteria_flags"`
}

// CreateDocument creates a draft document. This stands in for the owning
// subsystem that normally computes the snapshot.
func (h *Handler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := document.Kind(req.Kind)
	if !kind.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown document kind"})
		return
	}
	if req.Amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	doc := document.New(kind, req.Amount, req.CriteriaFlags)
	if err := h.store.Save(c.Request.Context(), doc); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// GetDocument returns a document with its chain and history.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Submit builds the approval chain and runs the auto-approval pass.
func (h *Handler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.engine.Submit(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}

	// Clear any auto-approvable steps right after the chain is built.
	doc, err := h.engine.AutoApprove(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

type decideRequest struct {
	ActingRole string           `json:"acting_role" binding:"required"`
	ActorID    string           `json:"actor_id"`
	Decision   string           `json:"decision" binding:"required"`
	Amount     *decimal.Decimal `json:"amount"`
	Comments   string           `json:"comments"`
}

// Decide applies an approve/reject decision.
func (h *Handler) Decide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Decide(c.Request.Context(), c.Param("id"), engine.DecideRequest{
		ActingRole:     req.ActingRole,
		ActorID:        req.ActorID,
		Decision:       engine.Decision(req.Decision),
		AmountOverride: req.Amount,
		Comments:       req.Comments,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document": result.Document,
		"outcome":  result.Outcome,
	})
}

type escalateRequest struct {
	FromLevel string `json:"from_level" binding:"required"`
	Reason    string `json:"reason"`
}

// Escalate promotes a stuck pending step to the next level.
func (h *Handler) Escalate(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.Escalate(c.Request.Context(), c.Param("id"), req.FromLevel, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type delegateRequest struct {
	FromUserID string `json:"from_user_id" binding:"required"`
	ToUserID   string `json:"to_user_id" binding:"required"`
	Reason     string `json:"reason"`
}

// Delegate records an advisory reassignment within a level.
func (h *Handler) Delegate(c *gin.Context) {
	var req delegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.Delegate(c.Request.Context(), c.Param("id"), req.FromUserID, req.ToUserID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// SLAReport returns the overdue pending steps of one document.
func (h *Handler) SLAReport(c *gin.Context) {
	doc, err := h.store.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	violations, err := h.monitor.CheckCompliance(doc, time.Now())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if violations == nil {
		violations = []sla.Violation{}
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id": doc.ID,
		"violations":  violations,
	})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps the engine's error taxonomy to HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, document.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, document.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, document.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, document.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, document.ErrNoPendingApproval),
		errors.Is(err, document.ErrAlreadyDecided),
		errors.Is(err, document.ErrEscalationExhausted),
		errors.Is(err, document.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, document.ErrConfiguration):
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
