package model

import (
	"encoding/json"
	"time"
)

// GenericBatchStatus is the two-state projection of vendor batch statuses.
// The driver only ever needs "still running" vs "done"; the fine-grained
// vendor phase is preserved in GenericBatch.RawStatus for diagnostics.
type GenericBatchStatus string

const (
	BatchStatusSubmitted GenericBatchStatus = "submitted"
	BatchStatusFinished  GenericBatchStatus = "finished"
)

// GenericBatchRequestCounts normalizes a vendor request-count payload.
type GenericBatchRequestCounts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`

	// Raw retains the untranslated vendor counts payload.
	Raw json.RawMessage `json:"raw_request_counts_object,omitempty"`
}

// Conserved reports whether Total == Succeeded + Failed. It must hold for
// every finished batch.
func (c GenericBatchRequestCounts) Conserved() bool {
	return c.Total == c.Succeeded+c.Failed
}

// GenericBatch represents one vendor batch job submission.
//
// ID is assigned exactly once, at successful creation, and is immutable
// thereafter. Status transitions monotonically submitted → finished and
// never reverses. Once finished and downloaded the batch is immutable.
type GenericBatch struct {
	ID          string             `json:"id"`
	RequestFile string             `json:"request_file"`
	Status      GenericBatchStatus `json:"status"`
	RawStatus   string             `json:"raw_status"`

	CreatedAt  *time.Time `json:"created_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	RequestCounts GenericBatchRequestCounts `json:"request_counts"`

	// RawBatch retains the full untranslated vendor object for audit.
	RawBatch json.RawMessage `json:"raw_batch,omitempty"`

	// APIKeySuffix is the last characters of the credential used, for
	// multi-key disambiguation in logs. Never the full secret.
	APIKeySuffix string `json:"api_key_suffix,omitempty"`
}

// Finished reports whether the batch reached its terminal generic state.
func (b *GenericBatch) Finished() bool {
	return b.Status == BatchStatusFinished
}
