package model

// GenericRequest is one vendor-independent unit of generation work.
// It is created by the caller-facing layer and read-only to this core.
type GenericRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// ResponseFormat holds the structured-output instruction supplied by the
	// schema layer, already in embedded-JSON-schema form. Adapters place it
	// into the wire body verbatim.
	ResponseFormat any `json:"response_format,omitempty"`

	// GenerationParams carries sampling parameters (temperature, max_tokens,
	// top_p, ...) passed through to the vendor unmodified.
	GenerationParams map[string]any `json:"generation_params,omitempty"`

	// OriginalRowIdx is the position of this request in the caller's input
	// collection. It is the durable correlation key: vendor batch files are
	// reordered or streamed, so results are matched back by this identifier,
	// never by file position.
	OriginalRowIdx int `json:"original_row_idx"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
