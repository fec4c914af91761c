package resourcealgebra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func TestBucketShape(t *testing.T) {
	tests := []struct {
		name        string
		allocatable types.Resources
		wantRatio   string
		wantMem     string
	}{
		{
			name: "simple ratio",
			allocatable: types.Resources{
				ResourceNameCPU:    scalarResource(ResourceNameCPU, 4),
				ResourceNameMemory: scalarResource(ResourceNameMemory, 8192),
			},
			wantRatio: "2048.000",
			wantMem:   "8192",
		},
		{
			name: "ratio rounds to three digits",
			allocatable: types.Resources{
				ResourceNameCPU:    scalarResource(ResourceNameCPU, 3),
				ResourceNameMemory: scalarResource(ResourceNameMemory, 1000),
			},
			wantRatio: "333.333",
			wantMem:   "1000",
		},
		{
			name: "zero cpu falls into inf bucket",
			allocatable: types.Resources{
				ResourceNameCPU:    scalarResource(ResourceNameCPU, 0),
				ResourceNameMemory: scalarResource(ResourceNameMemory, 1024),
			},
			wantRatio: "inf",
			wantMem:   "1024",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, mem, err := BucketShape(tt.allocatable)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRatio, ratio)
			assert.Equal(t, tt.wantMem, mem)
		})
	}
}

func TestBucketShapeMissingResource(t *testing.T) {
	_, _, err := BucketShape(types.Resources{ResourceNameCPU: scalarResource(ResourceNameCPU, 1)})
	assert.Error(t, err)
}
