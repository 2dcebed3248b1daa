package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	assert.NoError(t, Size("cl", 12, 12, "mesh"))
	err := Size("cl", 12, 9, "mesh")
	var cerr *ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Msg, "cl")
	assert.NotEmpty(t, cerr.File)
	assert.NotZero(t, cerr.Line)
	assert.NotEmpty(t, cerr.Summary)
}

func TestEnum(t *testing.T) {
	allowed := []int64{0, 1, 2}
	assert.NoError(t, Enum("mapping", 1, allowed, nil))
	assert.Error(t, Enum("mapping", 7, allowed, nil))
}

func TestRange(t *testing.T) {
	assert.NoError(t, Range("x", []float32{0, 0.5, 1}, 0, 1, nil))
	err := Range("x", []float32{0, 1.5}, 0, 1, nil)
	require.Error(t, err)
	var cerr *ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, float32(1.5), cerr.Value)
}

func TestMonotonic(t *testing.T) {
	assert.NoError(t, Monotonic("el", []uint32{0, 0, 3, 7}, nil))
	assert.Error(t, Monotonic("el", []uint32{0, 3, 2}, nil))
	assert.NoError(t, Monotonic("el", []uint32{}, nil))
}

func TestIndexOverflow(t *testing.T) {
	assert.NoError(t, IndexOverflow("size", 1<<20, nil))
	assert.Error(t, IndexOverflow("size", 1<<40, nil))
}

type failingChecker struct{}

func (failingChecker) Check() error { return assert.AnError }

type okChecker struct{}

func (okChecker) Check() error { return nil }

func TestSubObject(t *testing.T) {
	assert.NoError(t, SubObject("normals", nil, nil))
	assert.NoError(t, SubObject("normals", okChecker{}, nil))
	assert.Error(t, SubObject("normals", failingChecker{}, nil))
}
