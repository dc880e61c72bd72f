package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/propdesk/internal/apierrors"
	"github.com/propdesk/propdesk/internal/repository"
	"github.com/propdesk/propdesk/internal/services/escalation"
)

// EscalationHandlers bundles the HTTP surface of the escalation engine:
// rule administration, the event feed, manual escalations, acknowledgment
// and engine status.
type EscalationHandlers struct {
	rules  *repository.EscalationRuleRepository
	events *repository.EscalationEventRepository
	engine *escalation.Service
}

// NewEscalationHandlers wires the handlers over their stores and engine.
func NewEscalationHandlers(rules *repository.EscalationRuleRepository, events *repository.EscalationEventRepository, engine *escalation.Service) *EscalationHandlers {
	return &EscalationHandlers{rules: rules, events: events, engine: engine}
}

// Register mounts the escalation routes on the group.
func (h *EscalationHandlers) Register(g *gin.RouterGroup) {
	g.GET("/escalations/rules", h.HandleListEscalationRules)
	g.POST("/escalations/rules", h.HandleCreateEscalationRule)
	g.PUT("/escalations/rules/:id", h.HandleUpdateEscalationRule)
	g.DELETE("/escalations/rules/:id", h.HandleDeleteEscalationRule)

	g.GET("/escalations/events", h.HandleListEscalationEvents)
	g.POST("/escalations/events", h.HandleCreateEscalationEvent)
	g.PUT("/escalations/events/:id", h.HandleAcknowledgeEscalationEvent)

	g.GET("/escalations/status", h.HandleEscalationStatus)
	g.POST("/escalations/sweep", h.HandleTriggerSweep)
}

// HandleEscalationStatus handles GET /api/v1/escalations/status, reporting
// the engine's current state and the outcome of the last sweep.
func (h *EscalationHandlers) HandleEscalationStatus(c *gin.Context) {
	data := gin.H{
		"state":    h.engine.Status(),
		"interval": h.engine.Interval().String(),
	}
	if last, found, err := h.engine.LastSweep(c.Request.Context()); err == nil && found {
		data["last_sweep"] = last
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// HandleTriggerSweep handles POST /api/v1/escalations/sweep: an immediate
// out-of-schedule evaluation pass. A sweep already in flight is reported
// as a conflict rather than queued.
func (h *EscalationHandlers) HandleTriggerSweep(c *gin.Context) {
	result, err := h.engine.RunSweep(c.Request.Context())
	if err != nil {
		if errors.Is(err, escalation.ErrSweepInProgress) {
			apierrors.ErrorWithMessage(c, apierrors.CodeConflict, "a sweep is already in progress")
			return
		}
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
