package openai

import "encoding/json"

// wireRequest is one line of the OpenAI batch input file.
type wireRequest struct {
	CustomID string         `json:"custom_id"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Body     map[string]any `json:"body"`
}

// wireResult is one line of the OpenAI batch output (or error) file.
type wireResult struct {
	ID       string         `json:"id"`
	CustomID string         `json:"custom_id"`
	Response *wireResponse  `json:"response,omitempty"`
	Error    *wireResultErr `json:"error,omitempty"`
}

type wireResponse struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

type wireResultErr struct {
	Code    string `json:"code,omitempty"`
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

// batchObject is the vendor batch job object.
type batchObject struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Endpoint         string         `json:"endpoint"`
	InputFileID      string         `json:"input_file_id"`
	CompletionWindow string         `json:"completion_window"`
	Status           string         `json:"status"`
	OutputFileID     *string        `json:"output_file_id,omitempty"`
	ErrorFileID      *string        `json:"error_file_id,omitempty"`
	CreatedAt        int64          `json:"created_at"`
	CompletedAt      *int64         `json:"completed_at,omitempty"`
	FailedAt         *int64         `json:"failed_at,omitempty"`
	ExpiredAt        *int64         `json:"expired_at,omitempty"`
	CancelledAt      *int64         `json:"cancelled_at,omitempty"`
	RequestCounts    *requestCounts `json:"request_counts,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Errors           *batchErrors   `json:"errors,omitempty"`
}

type requestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type batchErrors struct {
	Object string `json:"object"`
	Data   []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Line    *int   `json:"line,omitempty"`
	} `json:"data"`
}

// fileObject is the vendor file object returned by uploads.
type fileObject struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

// apiError is the JSON error envelope on non-2xx responses.
type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
		Code    any    `json:"code,omitempty"`
	} `json:"error,omitempty"`
}
