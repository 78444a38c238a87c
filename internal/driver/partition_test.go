package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionByRequestCount(t *testing.T) {
	proc := newFakeProc()
	proc.limits.MaxRequestsPerBatch = 2

	chunks, err := partition(proc, genRequests(5))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, []int{0, 1}, chunks[0].positions)
	assert.Equal(t, []int{2, 3}, chunks[1].positions)
	assert.Equal(t, []int{4}, chunks[2].positions)
	for i, c := range chunks {
		assert.Equal(t, i, c.index)
		assert.Len(t, c.wire, c.size())
	}
}

func TestPartitionByByteLimit(t *testing.T) {
	proc := newFakeProc()
	reqs := genRequests(3)
	line, err := proc.CreateWireRequest(reqs[0])
	require.NoError(t, err)

	// Room for two serialized lines (with trailing newlines) per chunk.
	proc.limits.MaxBytesPerBatch = 2 * (len(line) + 1)

	chunks, err := partition(proc, reqs)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[0].size())
	assert.Equal(t, 1, chunks[1].size())
}

func TestPartitionOversizeRequest(t *testing.T) {
	proc := newFakeProc()
	proc.limits.MaxBytesPerBatch = 4

	_, err := partition(proc, genRequests(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte batch limit")
}

func TestPartitionEmptyInput(t *testing.T) {
	proc := newFakeProc()

	chunks, err := partition(proc, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestPartitionSingleChunkWithinLimits(t *testing.T) {
	proc := newFakeProc()

	chunks, err := partition(proc, genRequests(10))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 10, chunks[0].size())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, chunks[0].positions)
}
