package model

import (
	"encoding/json"
	"time"
)

// TokenUsage holds vendor-reported token counts for one response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenericResponse is the terminal artifact handed back to the caller, one
// per original request. Exactly one of ResponseMessage/ResponseErrors is
// set: never both, never neither. It is never mutated after creation.
type GenericResponse struct {
	GenericRequest *GenericRequest `json:"generic_request"`

	// ResponseMessage is the parsed payload on success; nil on failure.
	ResponseMessage *string `json:"response_message,omitempty"`

	// ResponseErrors carries structured error detail on failure; empty on
	// success.
	ResponseErrors []string `json:"response_errors,omitempty"`

	// TokenUsage and ResponseCost are present only when the result is a
	// success and the vendor reports usage. A nil ResponseCost means cost
	// unknown, which is distinct from zero spend.
	TokenUsage   *TokenUsage `json:"token_usage,omitempty"`
	ResponseCost *float64    `json:"response_cost,omitempty"`

	// RawResponse retains the untranslated wire result.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`

	// Timestamps are copied from the owning batch, not the individual
	// request: batch requests share one processing window.
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Succeeded reports whether the response carries a parsed message.
func (r *GenericResponse) Succeeded() bool {
	return r.ResponseMessage != nil
}
