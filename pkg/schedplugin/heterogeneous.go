package schedplugin

import (
	"regexp"
	"strings"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// Heterogeneous resource names take the form "VENDOR/PRODUCT/KIND",
// e.g. "NPU/310P.*/memory" (PRODUCT may itself be a regex the filter
// resolves against the card types actually present on a unit) or
// "GPU/A100/count". KIND selects which per-device metric is being
// requested.
const heteroFieldCount = 3

const (
	HeteroKindMemory  = "memory"
	HeteroKindLatency = "latency"
	HeteroKindStream  = "stream"
	HeteroKindCount   = "count"
)

// isHeterogeneousName reports whether a resource name follows the
// VENDOR/PRODUCT/KIND convention rather than naming a plain scalar.
func isHeterogeneousName(name string) bool {
	return len(strings.Split(name, "/")) == heteroFieldCount
}

// hasHeterogeneousResource reports whether any of an instance's
// requested resources are heterogeneous.
func hasHeterogeneousResource(rs types.Resources) bool {
	for name := range rs {
		if isHeterogeneousName(name) {
			return true
		}
	}
	return false
}

// splitHeteroName splits a VENDOR/PRODUCT/KIND resource name.
func splitHeteroName(name string) (vendorProductRegex, kind string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) != heteroFieldCount {
		return "", "", false
	}
	return parts[0] + "/" + parts[1], parts[2], true
}

// resolveCardType finds the first resource-name key in available
// whose VENDOR/PRODUCT portion matches cardTypeRegex as a regular
// expression, so a request can say "NPU/310.*" and match whichever
// concrete card type ("NPU/310P", "NPU/310B") the unit actually has.
func resolveCardType(available types.Resources, cardTypeRegex string) string {
	re, err := regexp.Compile("^" + cardTypeRegex + "$")
	if err != nil {
		return ""
	}
	for name := range available {
		vp, _, ok := splitHeteroName(name)
		if !ok {
			continue
		}
		if re.MatchString(vp) {
			return vp
		}
	}
	return ""
}

// cardCategory returns the vector slot for a resolved card type + kind
// pair, e.g. available["NPU/310P/memory"].Vectors: the category named
// kind when present, otherwise the resource's only category.
func cardCategory(available types.Resources, cardType, kind string) (*types.VectorSlot, bool) {
	r, ok := available[cardType+"/"+kind]
	if !ok || r.Type != types.ValueTypeVectors || r.Vectors == nil {
		return nil, false
	}
	if slot, ok := r.Vectors.Categories[kind]; ok && slot != nil {
		return slot, true
	}
	if len(r.Vectors.Categories) == 1 {
		for _, slot := range r.Vectors.Categories {
			return slot, slot != nil
		}
	}
	return nil, false
}
