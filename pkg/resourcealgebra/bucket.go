package resourcealgebra

import (
	"fmt"
	"math"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// Well-known scalar resource names used to derive a unit's bucket shape.
const (
	ResourceNameCPU    = "cpu"
	ResourceNameMemory = "memory"
)

// BucketShape computes the (mem/cpu-ratio key, mem-value key) pair a
// ResourceUnit's allocatable resources fall into. The ratio is rounded
// to three decimal digits so that units with near-identical shapes
// share a bucket instead of each unit getting its own. A unit with no
// cpu allocatable falls into the "inf" ratio bucket.
func BucketShape(allocatable types.Resources) (ratioKey, memKey string, err error) {
	cpu, ok := allocatable[ResourceNameCPU]
	if !ok || cpu.Type != types.ValueTypeScalar {
		return "", "", fmt.Errorf("bucket shape: missing scalar resource %q", ResourceNameCPU)
	}
	mem, ok := allocatable[ResourceNameMemory]
	if !ok || mem.Type != types.ValueTypeScalar {
		return "", "", fmt.Errorf("bucket shape: missing scalar resource %q", ResourceNameMemory)
	}

	if ScalarEqual(cpu.Scalar.Value, 0) {
		ratioKey = "inf"
	} else {
		ratio := mem.Scalar.Value / cpu.Scalar.Value
		ratioKey = formatRounded(ratio, 3)
	}
	memKey = formatRounded(mem.Scalar.Value, 0)
	return ratioKey, memKey, nil
}

func formatRounded(v float64, digits int) string {
	scale := math.Pow(10, float64(digits))
	rounded := math.Round(v*scale) / scale
	return fmt.Sprintf("%.*f", digits, rounded)
}
