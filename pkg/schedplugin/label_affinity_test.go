package schedplugin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func TestLabelAffinityStrictRejectsMissingLabel(t *testing.T) {
	f := NewLabelAffinityFilter(false)
	unit := &types.ResourceUnit{ID: "agent-1", NodeLabels: map[string]types.LabelCounter{
		"zone": {"us-west": 1},
	}}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{
		ScheduleOption: types.ScheduleOption{Affinity: map[string]string{"zone": "us-east"}},
	}}

	result := f.Filter(nil, req, unit)
	assert.False(t, result.Passed())
}

func TestLabelAffinityRelaxedNeverRejects(t *testing.T) {
	f := NewLabelAffinityFilter(true)
	unit := &types.ResourceUnit{ID: "agent-1"}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{
		ScheduleOption: types.ScheduleOption{Affinity: map[string]string{"zone": "us-east"}},
	}}

	result := f.Filter(nil, req, unit)
	assert.True(t, result.Passed())
}

func TestLabelAffinityNoRequestAlwaysPasses(t *testing.T) {
	f := NewLabelAffinityFilter(false)
	unit := &types.ResourceUnit{ID: "agent-1"}
	req := &types.ScheduleRequest{Instance: &types.InstanceInfo{}}

	result := f.Filter(nil, req, unit)
	assert.True(t, result.Passed())
}
