package schederr

import (
	"sort"
	"strings"
)

// Collect reduces a batch of per-unit/per-instance errors (nils
// included) into a single error. Messages are deduplicated; the
// resulting Code is concernedCode if any input carried it, otherwise
// the highest-severity code seen (a code missing from the severity
// table ranks lowest but is still returned if it is the only one);
// CodeInnerSystemError is used only when every input's code is empty.
// A nil-only batch returns nil.
func Collect(errs []error, concernedCode Code) error {
	seen := map[string]struct{}{}
	var messages []string
	isConcerned := false
	bestCode := Code("")
	bestSeverity := -1

	for _, err := range errs {
		if err == nil {
			continue
		}
		code := CodeOf(err)
		if code == concernedCode {
			isConcerned = true
		}
		if sev := severity[code]; sev > bestSeverity {
			bestSeverity = sev
			bestCode = code
		}
		if _, dup := seen[err.Error()]; !dup {
			seen[err.Error()] = struct{}{}
			messages = append(messages, err.Error())
		}
	}

	if len(messages) == 0 {
		return nil
	}
	if isConcerned {
		bestCode = concernedCode
	}
	if bestCode == "" {
		bestCode = CodeInnerSystemError
	}
	sort.Strings(messages)
	return New(bestCode, "%s", strings.Join(messages, "; "))
}
