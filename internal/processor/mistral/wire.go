package mistral

import "encoding/json"

// wireRequest is one line of the Mistral batch input file. The model is
// not repeated per line; it is bound at job creation.
type wireRequest struct {
	CustomID string         `json:"custom_id"`
	Body     map[string]any `json:"body"`
}

// wireResult is one line of the job's output (or error) file.
type wireResult struct {
	ID       string         `json:"id,omitempty"`
	CustomID string         `json:"custom_id"`
	Response *wireResponse  `json:"response,omitempty"`
	Error    *wireResultErr `json:"error,omitempty"`
}

type wireResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type wireResultErr struct {
	Message string `json:"message"`
}

// completionBody is the chat-completion payload inside a successful result.
type completionBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// batchJob is the vendor batch job object.
// Reference: https://github.com/mistralai/client-python/blob/main/docs/models/batchjobout.md
type batchJob struct {
	ID                string         `json:"id"`
	Object            string         `json:"object,omitempty"`
	Model             string         `json:"model,omitempty"`
	Endpoint          string         `json:"endpoint,omitempty"`
	InputFiles        []string       `json:"input_files,omitempty"`
	OutputFile        *string        `json:"output_file,omitempty"`
	ErrorFile         *string        `json:"error_file,omitempty"`
	Status            string         `json:"status"`
	CreatedAt         int64          `json:"created_at"`
	StartedAt         *int64         `json:"started_at,omitempty"`
	CompletedAt       *int64         `json:"completed_at,omitempty"`
	TotalRequests     int            `json:"total_requests"`
	SucceededRequests int            `json:"succeeded_requests"`
	FailedRequests    int            `json:"failed_requests"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// fileObject is the vendor file object returned by uploads.
type fileObject struct {
	ID        string `json:"id"`
	Object    string `json:"object,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}
