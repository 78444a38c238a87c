package processor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProcessor struct{ name string }

func (p *nopProcessor) Backend() string { return p.name }
func (p *nopProcessor) Limits() Limits  { return Limits{} }
func (p *nopProcessor) CreateWireRequest(req *model.GenericRequest) ([]byte, error) {
	return nil, nil
}
func (p *nopProcessor) SubmitBatch(ctx context.Context, wireRequests [][]byte, metadata map[string]string) (*model.GenericBatch, error) {
	return nil, nil
}
func (p *nopProcessor) RetrieveBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	return nil, nil
}
func (p *nopProcessor) DownloadBatch(ctx context.Context, batch *model.GenericBatch) ([]json.RawMessage, error) {
	return nil, nil
}
func (p *nopProcessor) CancelBatch(ctx context.Context, batch *model.GenericBatch) (*model.GenericBatch, error) {
	return batch, nil
}
func (p *nopProcessor) ParseResponse(raw json.RawMessage, req *model.GenericRequest, batch *model.GenericBatch) (*model.GenericResponse, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("fake", func(opts Options) (BatchProcessor, error) {
		return &nopProcessor{name: "fake"}, nil
	})

	p, err := New("fake", Options{})
	require.NoError(t, err)
	assert.Equal(t, "fake", p.Backend())

	_, err = New("no-such-backend", Options{})
	assert.Error(t, err)

	assert.Contains(t, List(), "fake")
}

func TestGateSize(t *testing.T) {
	assert.Equal(t, 100, Options{}.GateSize(100))
	assert.Equal(t, 8, Options{MaxConcurrent: 8}.GateSize(100))
}

func TestKeySuffix(t *testing.T) {
	assert.Equal(t, "wxyz", KeySuffix("sk-abcdefwxyz"))
	assert.Equal(t, "abc", KeySuffix("abc"))
}

func TestJoinAndSplitJSONL(t *testing.T) {
	lines := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}
	body := JoinJSONL(lines)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(body))

	records := SplitJSONL(append(body, []byte("\n\n")...))
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"b":2}`, string(records[1]))
}
