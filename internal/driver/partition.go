package driver

import (
	"fmt"

	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/praxisllmlab/piliangLLM/internal/processor"
)

// chunk is a size-bounded subset of the caller's collection, submitted as
// one vendor batch.
type chunk struct {
	index     int
	requests  []*model.GenericRequest
	positions []int // positions in the caller's collection
	wire      [][]byte
	existing  *model.GenericBatch // stored batch when resuming
}

func (c *chunk) size() int { return len(c.requests) }

// partition splits the collection into chunks satisfying both the request
// count and byte limits, preserving original order and recording each
// request's position. Wire translation happens here so byte accounting
// uses the exact serialized form (line plus newline).
func partition(proc processor.BatchProcessor, requests []*model.GenericRequest) ([]*chunk, error) {
	limits := proc.Limits()

	var chunks []*chunk
	current := &chunk{index: 0}
	var currentBytes int

	for pos, req := range requests {
		line, err := proc.CreateWireRequest(req)
		if err != nil {
			return nil, fmt.Errorf("translate request %d: %w", req.OriginalRowIdx, err)
		}
		lineBytes := len(line) + 1

		if lineBytes > limits.MaxBytesPerBatch {
			return nil, fmt.Errorf("request %d is %d bytes, exceeding the %d byte batch limit on its own",
				req.OriginalRowIdx, lineBytes, limits.MaxBytesPerBatch)
		}

		if current.size() > 0 &&
			(current.size() >= limits.MaxRequestsPerBatch || currentBytes+lineBytes > limits.MaxBytesPerBatch) {
			chunks = append(chunks, current)
			current = &chunk{index: len(chunks)}
			currentBytes = 0
		}

		current.requests = append(current.requests, req)
		current.positions = append(current.positions, pos)
		current.wire = append(current.wire, line)
		currentBytes += lineBytes
	}

	// An empty chunk is never submitted.
	if current.size() > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
