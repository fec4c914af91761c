package resourcealgebra

import (
	"strings"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// ToLabelKV splits a "key:value" affinity string into its key and
// value at the first colon only, so values are free to contain
// colons themselves. A bare key with no colon is treated as
// {key: {"": 1}} -- present but valueless.
func ToLabelKV(s string) (key, value string) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// AddLabelCounter increments counter[value] by one, creating the
// counter if absent.
func AddLabelCounter(counters map[string]types.LabelCounter, key, value string) {
	c, ok := counters[key]
	if !ok {
		c = types.LabelCounter{}
		counters[key] = c
	}
	c[value]++
}

// SubLabelCounter decrements counter[value] by one, erasing the value
// entry once it reaches zero and erasing the key entirely once it has
// no values left. This keeps NodeLabels free of zero-count noise that
// would otherwise accumulate across instance churn.
func SubLabelCounter(counters map[string]types.LabelCounter, key, value string) {
	c, ok := counters[key]
	if !ok {
		return
	}
	c[value]--
	if c[value] <= 0 {
		delete(c, value)
	}
	if len(c) == 0 {
		delete(counters, key)
	}
}
