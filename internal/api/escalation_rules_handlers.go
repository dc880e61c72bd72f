package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propdesk/propdesk/internal/apierrors"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/repository"
)

// EscalationRuleInput is the JSON body for creating an escalation rule.
type EscalationRuleInput struct {
	Name               string `json:"name" binding:"required"`
	Description        string `json:"description"`
	EntityType         string `json:"entity_type" binding:"required"`
	TriggerCondition   string `json:"trigger_condition" binding:"required"`
	EscalateToRole     string `json:"escalate_to_role" binding:"required"`
	TimeThresholdHours *int   `json:"time_threshold_hours"`
	CustomPredicate    string `json:"custom_predicate"`
	IsActive           *bool  `json:"is_active"`
}

// HandleListEscalationRules handles GET /api/v1/escalations/rules.
// Supports optional entity_type and active filters for the admin UI.
func (h *EscalationHandlers) HandleListEscalationRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context())
	if err != nil {
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}

	entityType := c.Query("entity_type")
	if entityType != "" && !models.ValidEntityType(entityType) {
		apierrors.ErrorWithField(c, apierrors.CodeUnknownEnumValue, "entity_type", "unknown entity type "+entityType)
		return
	}
	activeOnly := c.Query("active") == "true"

	filtered := make([]*models.EscalationRule, 0, len(rules))
	for _, rule := range rules {
		if entityType != "" && string(rule.EntityType) != entityType {
			continue
		}
		if activeOnly && !rule.IsActive {
			continue
		}
		filtered = append(filtered, rule)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": filtered})
}

// HandleCreateEscalationRule handles POST /api/v1/escalations/rules.
func (h *EscalationHandlers) HandleCreateEscalationRule(c *gin.Context) {
	var input EscalationRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInvalidRequest, err.Error())
		return
	}

	rule := &models.EscalationRule{
		Name:               input.Name,
		Description:        input.Description,
		EntityType:         models.EntityType(input.EntityType),
		TriggerCondition:   models.TriggerCondition(input.TriggerCondition),
		EscalateToRole:     models.EscalationRole(input.EscalateToRole),
		TimeThresholdHours: input.TimeThresholdHours,
		CustomPredicate:    input.CustomPredicate,
		IsActive:           true,
	}
	if input.IsActive != nil {
		rule.IsActive = *input.IsActive
	}

	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		writeRuleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": rule})
}

// HandleUpdateEscalationRule handles PUT /api/v1/escalations/rules/:id.
// The body is a partial update; absent fields keep their current value,
// and an explicit null clears the time threshold.
func (h *EscalationHandlers) HandleUpdateEscalationRule(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		apierrors.Error(c, apierrors.CodeInvalidRequest)
		return
	}

	var input struct {
		Name               *string `json:"name"`
		Description        *string `json:"description"`
		EntityType         *string `json:"entity_type"`
		TriggerCondition   *string `json:"trigger_condition"`
		EscalateToRole     *string `json:"escalate_to_role"`
		TimeThresholdHours *int    `json:"time_threshold_hours"`
		CustomPredicate    *string `json:"custom_predicate"`
		IsActive           *bool   `json:"is_active"`
	}
	if err := json.Unmarshal(body, &input); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInvalidRequest, err.Error())
		return
	}

	patch := repository.RulePatch{
		Name:               input.Name,
		Description:        input.Description,
		TimeThresholdHours: input.TimeThresholdHours,
		CustomPredicate:    input.CustomPredicate,
		IsActive:           input.IsActive,
	}
	if input.EntityType != nil {
		entityType := models.EntityType(*input.EntityType)
		patch.EntityType = &entityType
	}
	if input.TriggerCondition != nil {
		trigger := models.TriggerCondition(*input.TriggerCondition)
		patch.TriggerCondition = &trigger
	}
	if input.EscalateToRole != nil {
		role := models.EscalationRole(*input.EscalateToRole)
		patch.EscalateToRole = &role
	}
	if raw, present := fields["time_threshold_hours"]; present && string(raw) == "null" {
		patch.ClearThreshold = true
	}

	rule, err := h.rules.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeRuleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": rule})
}

// HandleDeleteEscalationRule handles DELETE /api/v1/escalations/rules/:id.
// Rules referenced by events cannot be deleted; deactivate them instead.
func (h *EscalationHandlers) HandleDeleteEscalationRule(c *gin.Context) {
	err := h.rules.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrRuleReferenced):
		apierrors.Error(c, apierrors.CodeRuleReferenced)
	case errors.Is(err, sql.ErrNoRows):
		apierrors.Error(c, apierrors.CodeRuleNotFound)
	case err != nil:
		apierrors.Error(c, apierrors.CodeInternalError)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// writeRuleError translates repository and validation errors from the rule
// store into API responses.
func writeRuleError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		apierrors.ErrorWithField(c, apierrors.CodeValidationFailed, verr.Field, verr.Message)
	case errors.Is(err, repository.ErrThresholdImmutable):
		apierrors.ErrorWithField(c, apierrors.CodeRuleImmutableField, "time_threshold_hours", err.Error())
	case errors.Is(err, sql.ErrNoRows):
		apierrors.Error(c, apierrors.CodeRuleNotFound)
	default:
		apierrors.Error(c, apierrors.CodeInternalError)
	}
}
