package resourcealgebra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func scalarResource(name string, value float64) *types.Resource {
	return &types.Resource{Name: name, Type: types.ValueTypeScalar, Scalar: &types.Scalar{Value: value}}
}

func vectorResource(name string, values map[string][]float64) *types.Resource {
	slot := &types.VectorSlot{Values: values}
	return &types.Resource{Name: name, Type: types.ValueTypeVectors, Vectors: &types.Vectors{
		Categories: map[string]*types.VectorSlot{"mem": slot},
	}}
}

func TestAddSubResourceScalar(t *testing.T) {
	l := scalarResource("cpu", 4)
	r := scalarResource("cpu", 1.5)

	sum, err := AddResource(l, r)
	require.NoError(t, err)
	assert.True(t, ScalarEqual(sum.Scalar.Value, 5.5))

	diff, err := SubResource(l, r)
	require.NoError(t, err)
	assert.True(t, ScalarEqual(diff.Scalar.Value, 2.5))
}

func TestAddSubResourceVectors(t *testing.T) {
	l := vectorResource("npu", map[string][]float64{"dev-0": {8, 8}})
	r := vectorResource("npu", map[string][]float64{"dev-0": {2, 1}, "dev-1": {4, 4}})

	sum, err := AddResource(l, r)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 9}, sum.Vectors.Categories["mem"].Values["dev-0"])
	assert.Equal(t, []float64{4, 4}, sum.Vectors.Categories["mem"].Values["dev-1"])

	diff, err := SubResource(l, r)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7}, diff.Vectors.Categories["mem"].Values["dev-0"])
}

func TestResourceTypeMismatchErrors(t *testing.T) {
	l := scalarResource("cpu", 1)
	r := vectorResource("cpu", map[string][]float64{"dev-0": {1}})

	_, err := AddResource(l, r)
	assert.Error(t, err)

	_, err = ResourceLessEqual(l, r)
	assert.Error(t, err)
}

func TestResourcesLessEqualAsymmetric(t *testing.T) {
	full := types.Resources{
		"cpu":    scalarResource("cpu", 4),
		"memory": scalarResource("memory", 8192),
	}
	request := types.Resources{
		"cpu": scalarResource("cpu", 2),
	}

	ok, err := ResourcesLessEqual(request, full)
	require.NoError(t, err)
	assert.True(t, ok, "request naming a subset of unit resources must be satisfiable")

	// a name present only on the left fails even though cpu alone fits.
	tooMuch := types.Resources{
		"cpu":   scalarResource("cpu", 2),
		"extra": scalarResource("extra", 1),
	}
	ok, err = ResourcesLessEqual(tooMuch, full)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		rs   types.Resources
		want bool
	}{
		{"empty rejected", types.Resources{}, false},
		{"valid scalar", types.Resources{"cpu": scalarResource("cpu", 1)}, true},
		{"negative scalar rejected", types.Resources{"cpu": scalarResource("cpu", -1)}, false},
		{"valid vectors", types.Resources{"npu": vectorResource("npu", map[string][]float64{"dev-0": {1}})}, true},
		{"negative vector value rejected", types.Resources{"npu": vectorResource("npu", map[string][]float64{"dev-0": {-1}})}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.rs))
		})
	}
}
