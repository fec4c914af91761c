package resourcealgebra

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func TestToLabelKV(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantKey   string
		wantValue string
	}{
		{"key and value", "zone:us-west", "zone", "us-west"},
		{"value containing colon", "endpoint:10.0.0.1:8080", "endpoint", "10.0.0.1:8080"},
		{"bare key", "gpu-pool", "gpu-pool", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, v := ToLabelKV(tt.in)
			assert.Equal(t, tt.wantKey, k)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestAddSubLabelCounter(t *testing.T) {
	counters := map[string]types.LabelCounter{}

	AddLabelCounter(counters, "zone", "us-west")
	AddLabelCounter(counters, "zone", "us-west")
	assert.Equal(t, 2, counters["zone"]["us-west"])

	SubLabelCounter(counters, "zone", "us-west")
	assert.Equal(t, 1, counters["zone"]["us-west"])

	SubLabelCounter(counters, "zone", "us-west")
	_, keyStillPresent := counters["zone"]
	assert.False(t, keyStillPresent, "key must be erased once its last value count hits zero")
}

func TestSubLabelCounterMissingKeyNoop(t *testing.T) {
	counters := map[string]types.LabelCounter{}
	assert.NotPanics(t, func() { SubLabelCounter(counters, "absent", "x") })
}
