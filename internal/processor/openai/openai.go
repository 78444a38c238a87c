// Package openai implements the batch processor for the OpenAI batch API.
// It is the reference adapter: file upload, job creation, polling, result
// download and cancellation against /files and /batches.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/praxisllmlab/piliangLLM/internal/gate"
	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/praxisllmlab/piliangLLM/internal/pricing"
	"github.com/praxisllmlab/piliangLLM/internal/processor"
)

const (
	backendName    = "openai"
	defaultBaseURL = "https://api.openai.com/v1"

	// Batch-processed requests are billed at half the synchronous rate.
	batchDiscount = 0.5

	completionWindow = "24h"

	maxRequestsPerBatch     = 50_000
	maxBytesPerBatch        = 200 * 1024 * 1024
	maxConcurrentOperations = 100
)

// Reference for batch statuses:
// validating, in_progress, finalizing, cancelling are non-final;
// completed, failed, expired, cancelled are final.
var (
	progressStates = map[string]bool{
		"validating": true, "in_progress": true, "finalizing": true, "cancelling": true,
	}
	finishedStates = map[string]bool{
		"completed": true, "failed": true, "expired": true, "cancelled": true,
	}
)

// Processor drives batches through the OpenAI batch API.
type Processor struct {
	baseURL string
	apiKey  string
	client  *http.Client
	gate    *gate.Gate
	pricing *pricing.Calculator
}

func init() {
	processor.Register(backendName, func(opts processor.Options) (processor.BatchProcessor, error) {
		return New(opts)
	})
}

// New creates an OpenAI batch processor.
func New(opts processor.Options) (*Processor, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: missing API key")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Processor{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		client:  opts.HTTPClient(),
		gate:    gate.New(opts.GateSize(maxConcurrentOperations)),
		pricing: pricing.Default(),
	}, nil
}

func (p *Processor) Backend() string { return backendName }

func (p *Processor) Limits() processor.Limits {
	return processor.Limits{
		MaxRequestsPerBatch:     maxRequestsPerBatch,
		MaxBytesPerBatch:        maxBytesPerBatch,
		MaxConcurrentOperations: maxConcurrentOperations,
	}
}

// CreateWireRequest builds one input-file line. The request's
// OriginalRowIdx becomes custom_id, echoed by the vendor alongside the
// matching result.
func (p *Processor) CreateWireRequest(req *model.GenericRequest) ([]byte, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.ResponseFormat != nil {
		body["response_format"] = req.ResponseFormat
	}
	for k, v := range req.GenerationParams {
		body[k] = v
	}

	return json.Marshal(wireRequest{
		CustomID: strconv.Itoa(req.OriginalRowIdx),
		Method:   http.MethodPost,
		URL:      "/v1/chat/completions",
		Body:     body,
	})
}

// SubmitBatch uploads the request file and creates the batch job. The gate
// is held across both network calls. Partial vendor-side state on failure
// (an uploaded file without a job) is reported, never cleaned up here.
func (p *Processor) SubmitBatch(ctx context.Context, wireRequests [][]byte, metadata map[string]string) (*model.GenericBatch, error) {
	var batch *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		file, err := p.uploadFile(ctx, processor.JoinJSONL(wireRequests))
		if err != nil {
			return &model.SubmissionError{Backend: backendName, Stage: "upload", Err: err}
		}

		raw, err := p.createBatch(ctx, file.ID, metadata)
		if err != nil {
			return &model.SubmissionError{Backend: backendName, Stage: "create", Err: err}
		}

		batch, err = p.parseBatchObject(raw, metadata[processor.MetadataRequestFile])
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// RetrieveBatch refreshes the batch from the vendor. A vendor 404 yields
// (nil, nil): the batch is lost and polling must stop.
func (p *Processor) RetrieveBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	var updated *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		raw, status, err := p.get(ctx, "/batches/"+batch.ID)
		if status == http.StatusNotFound {
			return model.ErrBatchNotFound
		}
		if err != nil {
			return &model.RetrievalError{Backend: backendName, BatchID: batch.ID, Err: err}
		}
		updated, err = p.parseBatchObject(raw, batch.RequestFile)
		return err
	})
	if errors.Is(err, model.ErrBatchNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DownloadBatch fetches the raw per-request results of a finished batch,
// reading both the output file and the error file when present.
func (p *Processor) DownloadBatch(ctx context.Context, batch *model.GenericBatch) ([]json.RawMessage, error) {
	if !batch.Finished() {
		return nil, model.ErrBatchNotFinished
	}

	var obj batchObject
	if err := json.Unmarshal(batch.RawBatch, &obj); err != nil {
		return nil, fmt.Errorf("openai: decode raw batch: %w", err)
	}

	var results []json.RawMessage
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		for _, fileID := range []*string{obj.OutputFileID, obj.ErrorFileID} {
			if fileID == nil || *fileID == "" {
				continue
			}
			content, _, err := p.get(ctx, "/files/"+*fileID+"/content")
			if err != nil {
				return fmt.Errorf("openai: download file %s: %w", *fileID, err)
			}
			results = append(results, processor.SplitJSONL(content)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CancelBatch requests cancellation. Best-effort: the vendor cancels
// asynchronously and the returned object may still be in a non-final state.
func (p *Processor) CancelBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	var updated *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		raw, _, err := p.post(ctx, "/batches/"+batch.ID+"/cancel", nil)
		if err != nil {
			return fmt.Errorf("openai: cancel batch %s: %w", batch.ID, err)
		}
		updated, err = p.parseBatchObject(raw, batch.RequestFile)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ParseResponse translates one output-file line into canonical form.
func (p *Processor) ParseResponse(raw json.RawMessage, req *model.GenericRequest, batch *model.GenericBatch) (*model.GenericResponse, error) {
	var res wireResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("openai: decode result: %w", err)
	}

	resp := &model.GenericResponse{
		GenericRequest: req,
		RawResponse:    raw,
		CreatedAt:      batch.CreatedAt,
		FinishedAt:     batch.FinishedAt,
	}

	if res.Error != nil {
		resp.ResponseErrors = []string{res.Error.Message}
		return resp, nil
	}
	if res.Response == nil {
		resp.ResponseErrors = []string{"result carries neither response nor error"}
		return resp, nil
	}
	if res.Response.StatusCode != http.StatusOK {
		resp.ResponseErrors = []string{statusError(res.Response)}
		return resp, nil
	}

	var body completionBody
	if err := json.Unmarshal(res.Response.Body, &body); err != nil {
		return nil, fmt.Errorf("openai: decode completion body: %w", err)
	}
	if len(body.Choices) == 0 {
		resp.ResponseErrors = []string{"response contains no choices"}
		return resp, nil
	}

	content := body.Choices[0].Message.Content
	resp.ResponseMessage = &content

	if body.Usage != nil {
		usage := model.TokenUsage{
			PromptTokens:     body.Usage.PromptTokens,
			CompletionTokens: body.Usage.CompletionTokens,
			TotalTokens:      body.Usage.TotalTokens,
		}
		resp.TokenUsage = &usage
		resp.ResponseCost = p.pricing.BatchCost(req.Model, usage, batchDiscount)
	}

	return resp, nil
}

// parseRequestCounts normalizes the counts carried on the batch object
// itself.
func parseRequestCounts(counts *requestCounts) model.GenericBatchRequestCounts {
	if counts == nil {
		return model.GenericBatchRequestCounts{}
	}
	raw, _ := json.Marshal(counts)
	return model.GenericBatchRequestCounts{
		Succeeded: counts.Completed,
		Failed:    counts.Failed,
		Total:     counts.Total,
		Raw:       raw,
	}
}

// parseBatchObject translates the vendor batch object into generic form.
// Every status in the vendor vocabulary maps to exactly one generic state;
// anything else is an UnknownStatusError, never a silent default.
func (p *Processor) parseBatchObject(raw json.RawMessage, requestFile string) (*model.GenericBatch, error) {
	var obj batchObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("openai: decode batch object: %w", err)
	}

	var status model.GenericBatchStatus
	switch {
	case progressStates[obj.Status]:
		status = model.BatchStatusSubmitted
	case finishedStates[obj.Status]:
		status = model.BatchStatusFinished
	default:
		return nil, &model.UnknownStatusError{Backend: backendName, Status: obj.Status}
	}

	created := time.Unix(obj.CreatedAt, 0).UTC()
	batch := &model.GenericBatch{
		ID:            obj.ID,
		RequestFile:   requestFile,
		Status:        status,
		RawStatus:     obj.Status,
		CreatedAt:     &created,
		RequestCounts: parseRequestCounts(obj.RequestCounts),
		RawBatch:      raw,
		APIKeySuffix:  processor.KeySuffix(p.apiKey),
	}

	for _, ts := range []*int64{obj.CompletedAt, obj.FailedAt, obj.ExpiredAt, obj.CancelledAt} {
		if ts != nil {
			finished := time.Unix(*ts, 0).UTC()
			batch.FinishedAt = &finished
			break
		}
	}

	return batch, nil
}

func statusError(res *wireResponse) string {
	var body apiError
	if err := json.Unmarshal(res.Body, &body); err == nil && body.Error != nil {
		return fmt.Sprintf("status %d: %s", res.StatusCode, body.Error.Message)
	}
	return fmt.Sprintf("request failed with status %d", res.StatusCode)
}

// uploadFile uploads the batch input file with purpose=batch.
func (p *Processor) uploadFile(ctx context.Context, content []byte) (*fileObject, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return nil, fmt.Errorf("write purpose field: %w", err)
	}
	part, err := w.CreateFormFile("file", "requests.jsonl")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	data, _, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var file fileObject
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode file object: %w", err)
	}
	return &file, nil
}

// createBatch creates the vendor batch job for an uploaded file.
func (p *Processor) createBatch(ctx context.Context, fileID string, metadata map[string]string) (json.RawMessage, error) {
	payload := map[string]any{
		"input_file_id":     fileID,
		"endpoint":          "/v1/chat/completions",
		"completion_window": completionWindow,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	raw, _, err := p.post(ctx, "/batches", payload)
	return raw, err
}

func (p *Processor) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return p.do(req)
}

func (p *Processor) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return p.do(req)
}

// do executes the request and returns the body and status code. Non-2xx
// responses become errors carrying the vendor error message.
func (p *Processor) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e apiError
		if err := json.Unmarshal(data, &e); err == nil && e.Error != nil {
			return nil, resp.StatusCode, fmt.Errorf("%s (status %d)", e.Error.Message, resp.StatusCode)
		}
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return data, resp.StatusCode, nil
}
