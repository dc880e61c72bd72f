package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/propdesk/internal/apierrors"
	"github.com/propdesk/propdesk/internal/models"
)

// ManualEscalationInput is the JSON body for POST /api/v1/escalations/events.
type ManualEscalationInput struct {
	EntityType  string `json:"entity_type" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	EntityTitle string `json:"entity_title"`
	EscalatedTo string `json:"escalated_to" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
}

// AcknowledgeInput is the JSON body for PUT /api/v1/escalations/events/:id.
// Acknowledgment is the only mutation an event supports.
type AcknowledgeInput struct {
	Acknowledged   bool   `json:"acknowledged"`
	AcknowledgedBy string `json:"acknowledged_by"`
}

// HandleListEscalationEvents handles GET /api/v1/escalations/events.
// Events come back most recent first; limit defaults server-side.
func (h *EscalationHandlers) HandleListEscalationEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierrors.ErrorWithField(c, apierrors.CodeValidationFailed, "limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := h.events.ListRecent(c.Request.Context(), limit)
	if err != nil {
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": events})
}

// HandleCreateEscalationEvent handles POST /api/v1/escalations/events: an
// operator raising an escalation by hand. Manual events skip rule matching
// and are never deduplicated.
func (h *EscalationHandlers) HandleCreateEscalationEvent(c *gin.Context) {
	var input ManualEscalationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInvalidRequest, err.Error())
		return
	}

	event, err := h.engine.EmitManual(c.Request.Context(),
		models.EntityType(input.EntityType), input.EntityID, input.EntityTitle,
		input.EscalatedTo, input.Reason)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			apierrors.ErrorWithField(c, apierrors.CodeValidationFailed, verr.Field, verr.Message)
			return
		}
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": event})
}

// HandleAcknowledgeEscalationEvent handles PUT /api/v1/escalations/events/:id.
// Acknowledging releases the dedup hold for the event's (rule, entity)
// pair. Acknowledging an already-acknowledged event is a no-op that keeps
// the first acknowledger.
func (h *EscalationHandlers) HandleAcknowledgeEscalationEvent(c *gin.Context) {
	var input AcknowledgeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInvalidRequest, err.Error())
		return
	}
	if !input.Acknowledged {
		apierrors.ErrorWithField(c, apierrors.CodeValidationFailed, "acknowledged", "events can only be acknowledged, not un-acknowledged")
		return
	}

	event, err := h.events.Acknowledge(c.Request.Context(), c.Param("id"), input.AcknowledgedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apierrors.Error(c, apierrors.CodeEventNotFound)
			return
		}
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": event})
}
