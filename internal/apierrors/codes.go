// Package apierrors provides structured API error codes and responses.
// All codes are namespaced (e.g., "core:not_found", "escalation:rule_referenced").
package apierrors

import "net/http"

// Core error codes - registered automatically at init
const (
	CodeInvalidRequest   = "core:invalid_request"
	CodeValidationFailed = "core:validation_failed"
	CodeInvalidID        = "core:invalid_id"
	CodeNotFound         = "core:not_found"
	CodeConflict         = "core:conflict"
	CodeInternalError    = "core:internal_error"

	// Escalation-specific codes
	CodeRuleNotFound       = "escalation:rule_not_found"
	CodeEventNotFound      = "escalation:event_not_found"
	CodeRuleImmutableField = "escalation:rule_immutable_field"
	CodeRuleReferenced     = "escalation:rule_referenced"
	CodeUnknownEnumValue   = "escalation:unknown_enum_value"
)

var registeredErrors = []ErrorCode{
	{Code: CodeInvalidRequest, Message: "Invalid request body", HTTPStatus: http.StatusBadRequest},
	{Code: CodeValidationFailed, Message: "Request validation failed", HTTPStatus: http.StatusBadRequest},
	{Code: CodeInvalidID, Message: "Invalid ID format", HTTPStatus: http.StatusBadRequest},
	{Code: CodeNotFound, Message: "Resource not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeConflict, Message: "Resource conflict", HTTPStatus: http.StatusConflict},
	{Code: CodeInternalError, Message: "Internal server error", HTTPStatus: http.StatusInternalServerError},

	{Code: CodeRuleNotFound, Message: "Escalation rule not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeEventNotFound, Message: "Escalation event not found", HTTPStatus: http.StatusNotFound},
	{Code: CodeRuleImmutableField, Message: "Field cannot be changed for this rule type", HTTPStatus: http.StatusBadRequest},
	{Code: CodeRuleReferenced, Message: "Escalation rule is referenced by events", HTTPStatus: http.StatusConflict},
	{Code: CodeUnknownEnumValue, Message: "Unknown enum value", HTTPStatus: http.StatusBadRequest},
}

func init() {
	for _, e := range registeredErrors {
		Registry.Register(e)
	}
}
