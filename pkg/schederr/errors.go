package schederr

import "fmt"

// Code identifies a class of scheduling failure. Callers switch on
// Code rather than comparing error strings.
type Code string

const (
	CodeOK                   Code = "OK"
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeResourceNotEnough    Code = "RESOURCE_NOT_ENOUGH"
	CodeResourceConfigError  Code = "RESOURCE_CONFIG_ERROR"
	CodeScheduleConflicted   Code = "SCHEDULE_CONFLICTED"
	CodeScheduleTimeout      Code = "SCHEDULE_TIMEOUT"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeParamInvalid         Code = "PARAM_INVALID"
	CodeUnitUnavailable      Code = "UNIT_UNAVAILABLE"
	CodeGroupFailed          Code = "GROUP_FAILED"
	CodeCanceled             Code = "CANCELED"
	CodeInnerSystemError     Code = "INNER_SYSTEM_ERROR"
	CodeAffinityScheduleFailed Code = "AFFINITY_SCHEDULE_FAILED"
	CodeInstanceDuplicated   Code = "INSTANCE_DUPLICATED"
	CodeEtcdOperationError   Code = "ETCD_OPERATION_ERROR"
	CodeUnderlayerUnavailable Code = "DOMAIN_SCHEDULER_UNAVAILABLE_SCHEDULER"
)

// severity ranks codes for Collect's "most concerning wins" rule.
// Unlisted codes (including CodeOK) rank at 0.
var severity = map[Code]int{
	CodeInnerSystemError:      12,
	CodeEtcdOperationError:    11,
	CodeGroupFailed:           10,
	CodeScheduleConflicted:    9,
	CodeAffinityScheduleFailed: 8,
	CodeResourceNotEnough:     7,
	CodeUnitUnavailable:       6,
	CodeUnderlayerUnavailable: 6,
	CodeScheduleTimeout:       5,
	CodeCanceled:              4,
	CodeNotFound:              3,
	CodeAlreadyExists:         3,
	CodeInstanceDuplicated:    3,
	CodeInvalidArgument:       2,
	CodeParamInvalid:          2,
	CodeResourceConfigError:   2,
}

// SchedError is a Code-tagged error.
type SchedError struct {
	Code    Code
	Message string
}

func (e *SchedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a SchedError carrying code and a formatted message.
func New(code Code, format string, args ...interface{}) *SchedError {
	return &SchedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, or CodeInnerSystemError if err
// is not a *SchedError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *SchedError
	if as(err, &se) {
		return se.Code
	}
	return CodeInnerSystemError
}

func as(err error, target **SchedError) bool {
	se, ok := err.(*SchedError)
	if !ok {
		return false
	}
	*target = se
	return true
}
