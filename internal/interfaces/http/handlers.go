package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meridian-mfg/pricewatch/internal/bom"
	"github.com/meridian-mfg/pricewatch/internal/domain/entity"
	"github.com/meridian-mfg/pricewatch/internal/domain/workflow"
	"github.com/meridian-mfg/pricewatch/internal/erp"
	"github.com/meridian-mfg/pricewatch/internal/mail"
	"github.com/meridian-mfg/pricewatch/internal/pipeline"
	"github.com/meridian-mfg/pricewatch/internal/report"
	"github.com/meridian-mfg/pricewatch/internal/vendorcache"
)

// Enqueuer accepts inbound emails for asynchronous processing
type Enqueuer interface {
	Enqueue(inbound entity.InboundEmail) error
}

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	processor   *pipeline.Processor
	analyzer    *bom.Analyzer
	aggregator  *bom.Aggregator
	cache       *vendorcache.Cache
	attachments *mail.AttachmentReader
	exporter    *report.ExcelExporter
	ingest      Enqueuer
	logger      *zap.Logger
}

// NewHandlers creates the handler set
func NewHandlers(
	processor *pipeline.Processor,
	analyzer *bom.Analyzer,
	aggregator *bom.Aggregator,
	cache *vendorcache.Cache,
	attachments *mail.AttachmentReader,
	exporter *report.ExcelExporter,
	ingest Enqueuer,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		processor:   processor,
		analyzer:    analyzer,
		aggregator:  aggregator,
		cache:       cache,
		attachments: attachments,
		exporter:    exporter,
		ingest:      ingest,
		logger:      logger,
	}
}

// HealthCheck reports service liveness
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// VendorCacheStatus returns the operational state of the vendor directory cache
func (h *Handlers) VendorCacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Status())
}

// VendorCacheRefresh forces an immediate cache rebuild
func (h *Handlers) VendorCacheRefresh(c *gin.Context) {
	if err := h.cache.Refresh(c.Request.Context()); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.cache.Status())
}

type ingestRequest struct {
	MessageID       string    `json:"message_id" binding:"required"`
	Sender          string    `json:"sender" binding:"required"`
	Subject         string    `json:"subject"`
	ReceivedAt      time.Time `json:"received_at"`
	ConversationID  string    `json:"conversation_id"`
	Body            string    `json:"body"`
	AttachmentPaths []string  `json:"attachment_paths"`
}

// IngestEmail accepts an inbound email for asynchronous processing. PDF
// attachment text is folded into the analysis body before queueing.
func (h *Handlers) IngestEmail(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}

	inbound := entity.InboundEmail{
		Record: entity.EmailRecord{
			MessageID:      req.MessageID,
			Sender:         req.Sender,
			Subject:        req.Subject,
			ReceivedAt:     req.ReceivedAt,
			ConversationID: req.ConversationID,
			CreatedAt:      time.Now(),
		},
		Body:            h.attachments.BuildAnalysisBody(req.Body, req.AttachmentPaths),
		AttachmentPaths: req.AttachmentPaths,
	}

	if err := h.ingest.Enqueue(inbound); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_id": req.MessageID, "status": "queued"})
}

// ListPendingReview returns every email parked for human review
func (h *Handlers) ListPendingReview(c *gin.Context) {
	states, err := h.processor.PendingReview(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": states, "count": len(states)})
}

type reviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
}

// ApproveEmail approves a parked email and runs the billable stages
func (h *Handlers) ApproveEmail(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.processor.ApproveAndProcess(c.Request.Context(), c.Param("message_id"), req.Reviewer)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// RejectEmail rejects a parked email; rejection is terminal
func (h *Handlers) RejectEmail(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.processor.Reject(c.Request.Context(), c.Param("message_id"), req.Reviewer); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("message_id"), "status": "rejected"})
}

// ReopenEmail clears the processed flag so an email can be reprocessed
func (h *Handlers) ReopenEmail(c *gin.Context) {
	if err := h.processor.MarkUnprocessed(c.Request.Context(), c.Param("message_id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("message_id"), "processed": false})
}

// ReprocessEmail re-runs the billable stages for an unprocessed email
func (h *Handlers) ReprocessEmail(c *gin.Context) {
	outcome, err := h.processor.Reprocess(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type syncRequest struct {
	Force bool `json:"force"`
}

// SyncToERP pushes approved price changes into the ERP
func (h *Handlers) SyncToERP(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.processor.SyncToERP(c.Request.Context(), c.Param("message_id"), req.Force)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBomImpact returns the current impact generation for an email
func (h *Handlers) GetBomImpact(c *gin.Context) {
	results, err := h.analyzer.Results(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("message_id"), "results": results})
}

// ReanalyzeBomImpact rebuilds the impact generation, discarding prior decisions
func (h *Handlers) ReanalyzeBomImpact(c *gin.Context) {
	results, err := h.analyzer.Reanalyze(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("message_id"), "results": results})
}

// ApproveAllProducts bulk-approves every eligible product
func (h *Handlers) ApproveAllProducts(c *gin.Context) {
	summary, err := h.analyzer.ApproveAll(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ApproveProduct approves a single product of the current generation
func (h *Handlers) ApproveProduct(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product index"})
		return
	}
	if err := h.analyzer.Approve(c.Request.Context(), c.Param("message_id"), index); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_index": index, "approved": true})
}

// RejectProduct rejects a single product of the current generation
func (h *Handlers) RejectProduct(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product index"})
		return
	}
	if err := h.analyzer.Reject(c.Request.Context(), c.Param("message_id"), index); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_index": index, "rejected": true})
}

// ExportBomImpact streams the current generation as an Excel workbook
func (h *Handlers) ExportBomImpact(c *gin.Context) {
	messageID := c.Param("message_id")
	results, err := h.analyzer.Results(c.Request.Context(), messageID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+h.exporter.FileName(messageID))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.Export(messageID, results, c.Writer); err != nil {
		h.logger.Error("Failed to export impact report",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// ThreadBomImpact returns the rollup across every email in a conversation
func (h *Handlers) ThreadBomImpact(c *gin.Context) {
	rollup, err := h.aggregator.Aggregate(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rollup)
}

// renderError maps domain errors to HTTP responses
func (h *Handlers) renderError(c *gin.Context, err error) {
	var blocker *pipeline.BlockerError
	var warning *pipeline.WarningError

	switch {
	case errors.Is(err, pipeline.ErrTransitionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrUnknownMessage):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrGuardFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &blocker):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    blocker.Error(),
			"blockers": blocker.Blockers,
			"warnings": blocker.Warnings,
		})
	case errors.As(err, &warning):
		c.JSON(http.StatusConflict, gin.H{
			"error":     warning.Error(),
			"warnings":  warning.Warnings,
			"forceable": true,
		})
	case errors.Is(err, erp.ErrSourceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
