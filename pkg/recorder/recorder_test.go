package recorder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordQueryEraseScheduleErr(t *testing.T) {
	r := New()

	_, ok := r.TryQueryScheduleErr("req-1")
	assert.False(t, ok)

	err := errors.New("resource not enough")
	r.RecordScheduleErr("req-1", err)

	got, ok := r.TryQueryScheduleErr("req-1")
	assert.True(t, ok)
	assert.Equal(t, err, got)

	r.RecordScheduleErr("req-1", errors.New("schedule timeout"))
	got, _ = r.TryQueryScheduleErr("req-1")
	assert.EqualError(t, got, "schedule timeout", "a later record must replace the earlier one")

	r.EraseScheduleErr("req-1")
	_, ok = r.TryQueryScheduleErr("req-1")
	assert.False(t, ok)
}
