// Package processor defines the contract every vendor batch adapter
// implements, and the registry the driver dispatches through.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/praxisllmlab/piliangLLM/internal/model"
)

// MetadataRequestFile is the recognized metadata key carrying the
// originating request-file handle. Adapters propagate it into
// GenericBatch.RequestFile for later correlation with on-disk artifacts.
const MetadataRequestFile = "request_file"

// Limits declares a backend's static batch constraints. The driver
// partitions work and sizes the concurrency gate from these; adapters may
// assume inputs they receive respect them.
type Limits struct {
	MaxRequestsPerBatch     int
	MaxBytesPerBatch        int
	MaxConcurrentOperations int
}

// BatchProcessor is the interface all vendor batch adapters implement.
// This mirrors the per-provider transform pattern: pure translation on the
// edges, vendor I/O in the middle, generic types everywhere else. The
// lifecycle driver relies exclusively on this contract.
type BatchProcessor interface {
	// Backend returns the backend identifier used for registry dispatch.
	Backend() string

	// Limits returns the backend's static batch constraints.
	Limits() Limits

	// CreateWireRequest converts a generic request into one line of the
	// vendor batch file. Pure and deterministic, no I/O. The request's
	// OriginalRowIdx must be embedded as the vendor's correlation
	// identifier, echoed verbatim alongside each result.
	CreateWireRequest(req *model.GenericRequest) ([]byte, error)

	// SubmitBatch serializes the wire requests to a batch file, uploads
	// it, creates the vendor job and translates the created job into a
	// GenericBatch with status submitted. The concurrency gate is held for
	// the duration of the network calls. On mid-sequence failure the
	// adapter reports a SubmissionError; it never cleans up
	// partially-created vendor-side resources.
	SubmitBatch(ctx context.Context, wireRequests [][]byte, metadata map[string]string) (*model.GenericBatch, error)

	// RetrieveBatch fetches current vendor status and re-translates it.
	// Returns (nil, nil) when the batch is not found or inaccessible,
	// signaling the driver to stop polling and report the batch as lost.
	RetrieveBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error)

	// DownloadBatch returns the raw per-request results. Only valid once
	// the batch is finished.
	DownloadBatch(ctx context.Context, batch *model.GenericBatch) ([]json.RawMessage, error)

	// CancelBatch is best-effort. Backends without cancellation support
	// return the batch unchanged with its original status.
	CancelBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error)

	// ParseResponse translates one wire result into canonical form,
	// populating exactly one of message/errors, extracting token usage and
	// computing cost with the backend's batch discount. Pure, no I/O.
	ParseResponse(raw json.RawMessage, req *model.GenericRequest, batch *model.GenericBatch) (*model.GenericResponse, error)
}

// Options configures an adapter instance at construction time.
type Options struct {
	APIKey  string
	BaseURL string // empty means the backend default
	Client  *http.Client

	// Model is required by backends that bind the model at job creation
	// rather than per request line.
	Model string

	// MaxConcurrent overrides the backend's default gate size when > 0.
	MaxConcurrent int
}

// GateSize returns the configured concurrency override, or def when unset.
func (o Options) GateSize(def int) int {
	if o.MaxConcurrent > 0 {
		return o.MaxConcurrent
	}
	return def
}

// HTTPClient returns the configured client or a shared default with a
// timeout suited to large file uploads and downloads.
func (o Options) HTTPClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return defaultHTTPClient
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Minute}

// KeySuffix returns the last four characters of an API key for log
// disambiguation. Never exposes the full secret.
func KeySuffix(apiKey string) string {
	if len(apiKey) <= 4 {
		return apiKey
	}
	return apiKey[len(apiKey)-4:]
}

// JoinJSONL assembles wire requests into a newline-delimited batch file
// body, one request per line.
func JoinJSONL(wireRequests [][]byte) []byte {
	var buf bytes.Buffer
	for _, line := range wireRequests {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// SplitJSONL splits a downloaded results file into raw per-request records,
// skipping blank lines.
func SplitJSONL(data []byte) []json.RawMessage {
	var out []json.RawMessage
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out
}
