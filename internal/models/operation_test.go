package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_ValidateMerge(t *testing.T) {
	op := &Operation{ID: 1, IsMerge: true, BeforeRoots: []SegmentID{10, 11}, AfterRoots: []SegmentID{12}}
	require.NoError(t, op.Validate())

	op.AfterRoots = []SegmentID{12, 13}
	err := op.Validate()
	var invalid *InvalidOperationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, OperationID(1), invalid.Operation)
}

func TestOperation_ValidateSplit(t *testing.T) {
	op := &Operation{ID: 2, BeforeRoots: []SegmentID{10}, AfterRoots: []SegmentID{11, 12}}
	require.NoError(t, op.Validate())

	op.AfterRoots = []SegmentID{11}
	require.NoError(t, op.Validate())

	op.AfterRoots = []SegmentID{11, 12, 13}
	assert.Error(t, op.Validate())

	op.AfterRoots = nil
	assert.Error(t, op.Validate())
}

func TestOperation_ValidateNoBeforeRoots(t *testing.T) {
	op := &Operation{ID: 3, IsMerge: true, AfterRoots: []SegmentID{1}}
	assert.Error(t, op.Validate())
}

func TestOperation_IsNoOp(t *testing.T) {
	op := &Operation{BeforeRoots: []SegmentID{2, 1}, AfterRoots: []SegmentID{1, 2}}
	assert.True(t, op.IsNoOp())

	op.AfterRoots = []SegmentID{3}
	assert.False(t, op.IsNoOp())
	assert.Equal(t, "split", op.Kind())
}
