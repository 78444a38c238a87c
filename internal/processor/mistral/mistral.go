// Package mistral implements the batch processor for the Mistral batch API.
// Unlike the OpenAI batch API, Mistral binds the model at job creation and
// request lines carry only custom_id and body.
package mistral

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
	backendName    = "mistral"
	defaultBaseURL = "https://api.mistral.ai/v1"

	// Mistral bills batch jobs at half the synchronous rate.
	batchDiscount = 0.5

	maxRequestsPerBatch     = 1_000_000
	maxBytesPerBatch        = 100 * 1024 * 1024
	maxConcurrentOperations = 100
)

// Reference for job statuses:
// https://github.com/mistralai/client-python/blob/main/docs/models/batchjobstatus.md
var (
	progressStates = map[string]bool{
		"QUEUED": true, "RUNNING": true, "CANCELLATION_REQUESTED": true,
	}
	finishedStates = map[string]bool{
		"SUCCESS": true, "FAILED": true, "TIMEOUT_EXCEEDED": true, "CANCELLED": true,
	}
)

// Processor drives batches through the Mistral batch API.
type Processor struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	gate    *gate.Gate
	pricing *pricing.Calculator
}

func init() {
	processor.Register(backendName, func(opts processor.Options) (processor.BatchProcessor, error) {
		return New(opts)
	})
}

// New creates a Mistral batch processor.
func New(opts processor.Options) (*Processor, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("mistral: missing API key")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("mistral: model is bound at job creation and must be configured")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Processor{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
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

// CreateWireRequest builds one input-file line. When the caller does not
// cap max_tokens explicitly, the model's documented output ceiling is used.
func (p *Processor) CreateWireRequest(req *model.GenericRequest) ([]byte, error) {
	body := map[string]any{
		"messages": req.Messages,
	}
	if req.ResponseFormat != nil {
		body["response_format"] = req.ResponseFormat
	}
	for k, v := range req.GenerationParams {
		body[k] = v
	}
	if _, ok := body["max_tokens"]; !ok {
		if info := p.pricing.GetModelInfo(p.model); info != nil && info.MaxTokens > 0 {
			body["max_tokens"] = info.MaxTokens
		}
	}

	return json.Marshal(wireRequest{
		CustomID: strconv.Itoa(req.OriginalRowIdx),
		Body:     body,
	})
}

// SubmitBatch uploads the request file and creates the batch job under one
// gate slot. Failures surface as SubmissionError; partially-created
// vendor-side state is not cleaned up by this layer.
func (p *Processor) SubmitBatch(ctx context.Context, wireRequests [][]byte, metadata map[string]string) (*model.GenericBatch, error) {
	var batch *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		file, err := p.uploadFile(ctx, processor.JoinJSONL(wireRequests))
		if err != nil {
			return &model.SubmissionError{Backend: backendName, Stage: "upload", Err: err}
		}

		raw, err := p.createJob(ctx, file.ID, metadata)
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

// RetrieveBatch refreshes job state. A vendor 404 yields (nil, nil).
func (p *Processor) RetrieveBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	var updated *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		raw, status, err := p.get(ctx, "/batch/jobs/"+batch.ID)
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

// DownloadBatch fetches raw results from the job's output and error files.
func (p *Processor) DownloadBatch(ctx context.Context, batch *model.GenericBatch) ([]json.RawMessage, error) {
	if !batch.Finished() {
		return nil, model.ErrBatchNotFinished
	}

	var job batchJob
	if err := json.Unmarshal(batch.RawBatch, &job); err != nil {
		return nil, fmt.Errorf("mistral: decode raw batch: %w", err)
	}

	var results []json.RawMessage
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		for _, fileID := range []*string{job.OutputFile, job.ErrorFile} {
			if fileID == nil || *fileID == "" {
				continue
			}
			content, _, err := p.get(ctx, "/files/"+*fileID+"/content")
			if err != nil {
				return fmt.Errorf("mistral: download file %s: %w", *fileID, err)
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

// CancelBatch requests job cancellation. The vendor acknowledges with a
// CANCELLATION_REQUESTED state and cancels asynchronously.
func (p *Processor) CancelBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	var updated *model.GenericBatch
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		raw, _, err := p.post(ctx, "/batch/jobs/"+batch.ID+"/cancel", nil)
		if err != nil {
			return fmt.Errorf("mistral: cancel job %s: %w", batch.ID, err)
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
		return nil, fmt.Errorf("mistral: decode result: %w", err)
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
		return nil, fmt.Errorf("mistral: decode completion body: %w", err)
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
		resp.ResponseCost = p.pricing.BatchCost(p.model, usage, batchDiscount)
	}

	return resp, nil
}

// parseRequestCounts normalizes the counts carried on the job object.
func parseRequestCounts(job *batchJob) model.GenericBatchRequestCounts {
	raw, _ := json.Marshal(map[string]int{
		"total_requests":     job.TotalRequests,
		"succeeded_requests": job.SucceededRequests,
		"failed_requests":    job.FailedRequests,
	})
	return model.GenericBatchRequestCounts{
		Succeeded: job.SucceededRequests,
		Failed:    job.FailedRequests,
		Total:     job.TotalRequests,
		Raw:       raw,
	}
}

// parseBatchObject translates the vendor job object into generic form,
// classifying every status in the vocabulary or failing with
// UnknownStatusError.
func (p *Processor) parseBatchObject(raw json.RawMessage, requestFile string) (*model.GenericBatch, error) {
	var job batchJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("mistral: decode batch job: %w", err)
	}

	var status model.GenericBatchStatus
	switch {
	case progressStates[job.Status]:
		status = model.BatchStatusSubmitted
	case finishedStates[job.Status]:
		status = model.BatchStatusFinished
	default:
		return nil, &model.UnknownStatusError{Backend: backendName, Status: job.Status}
	}

	created := time.Unix(job.CreatedAt, 0).UTC()
	batch := &model.GenericBatch{
		ID:            job.ID,
		RequestFile:   requestFile,
		Status:        status,
		RawStatus:     job.Status,
		CreatedAt:     &created,
		RequestCounts: parseRequestCounts(&job),
		RawBatch:      raw,
		APIKeySuffix:  processor.KeySuffix(p.apiKey),
	}

	if job.CompletedAt != nil {
		finished := time.Unix(*job.CompletedAt, 0).UTC()
		batch.FinishedAt = &finished
	}

	return batch, nil
}

func statusError(res *wireResponse) string {
	var detail struct {
		Detail *struct {
			Msg string `json:"msg"`
		} `json:"detail,omitempty"`
	}
	if err := json.Unmarshal(res.Body, &detail); err == nil && detail.Detail != nil {
		return fmt.Sprintf("status %d: %s", res.StatusCode, detail.Detail.Msg)
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

// createJob creates the batch job for an uploaded file. The model and
// target endpoint are bound here rather than per request line.
func (p *Processor) createJob(ctx context.Context, fileID string, metadata map[string]string) (json.RawMessage, error) {
	payload := map[string]any{
		"input_files": []string{fileID},
		"model":       p.model,
		"endpoint":    "/v1/chat/completions",
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}
	raw, _, err := p.post(ctx, "/batch/jobs", payload)
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

// do executes the request, turning non-2xx responses into errors carrying
// the vendor message.
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
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
			return nil, resp.StatusCode, fmt.Errorf("%s (status %d)", e.Message, resp.StatusCode)
		}
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return data, resp.StatusCode, nil
}
