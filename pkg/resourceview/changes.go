package resourceview

import "github.com/cuemby/yuanrong-scheduler/pkg/types"

func (v *ResourceView) appendChange(c types.ResourceUnitChange) {
	v.changeLog = append(v.changeLog, c)
	if len(v.changeLog) > defaultMaxChangeLog {
		// keep only the newest defaultMaxChangeLog entries; consumer
		// watermarks are not consulted.
		v.changeLog = append([]types.ResourceUnitChange(nil), v.changeLog[len(v.changeLog)-defaultMaxChangeLog:]...)
	}
}

// GetResourceViewChanges returns every change since the last call to
// GetResourceViewChanges, coalesced per unit, and advances the
// internal watermark so the next call only sees what's new.
func (v *ResourceView) GetResourceViewChanges() *types.ResourceUnitChanges {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := v.lastReportedRev
	end := v.revision
	result := &types.ResourceUnitChanges{
		LocalID:       v.id,
		StartRevision: start,
		EndRevision:   end,
	}
	v.mergeLocked(start, end, result)
	v.lastReportedRev = end
	return result
}

// MergeLocalResourceViewChanges coalesces the change log entries in
// (startRevision, endRevision] into result without moving the
// internal watermark; used by domain-side replay and by tests.
func (v *ResourceView) MergeLocalResourceViewChanges(startRevision, endRevision int64, result *types.ResourceUnitChanges) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	v.mergeLocked(startRevision, endRevision, result)
}

func (v *ResourceView) mergeLocked(start, end int64, result *types.ResourceUnitChanges) {
	coalesced := make(map[string]*types.ResourceUnitChange)
	order := make([]string, 0, len(v.changeLog))

	for _, c := range v.changeLog {
		if c.Revision <= start || c.Revision > end {
			continue
		}
		change := c
		prev, existed := coalesced[c.ResourceUnitID]
		if !existed {
			order = append(order, c.ResourceUnitID)
			coalesced[c.ResourceUnitID] = &change
			continue
		}
		coalesced[c.ResourceUnitID] = coalesceChange(prev, &change)
	}

	for _, id := range order {
		if ch := coalesced[id]; ch != nil {
			result.Changes = append(result.Changes, *ch)
		}
	}
}

// coalesceChange reduces two change-log entries for the same unit,
// seen in order, into the single entry a consumer that only cares
// about the net effect needs to apply. It returns nil when the two
// entries cancel out entirely (a unit added and deleted within the
// same unreported window never existed as far as a consumer is
// concerned).
func coalesceChange(prev, next *types.ResourceUnitChange) *types.ResourceUnitChange {
	switch {
	case prev.Kind == types.ChangeAddition && next.Kind == types.ChangeDeletion:
		return nil
	case prev.Kind == types.ChangeAddition && next.Kind == types.ChangeModification:
		// prev.Unit is the same mutable object the view has been
		// updating in place, so it already reflects next's effect.
		merged := *prev
		merged.Revision = next.Revision
		return &merged
	case prev.Kind == types.ChangeModification && next.Kind == types.ChangeModification:
		merged := *prev
		merged.Revision = next.Revision
		merged.InstanceChanges = collapseInstanceChanges(prev.InstanceChanges, next.InstanceChanges)
		if next.StatusChange != nil {
			merged.StatusChange = next.StatusChange
		}
		if next.ResourceChange != nil {
			merged.ResourceChange = next.ResourceChange
		}
		if next.LabelChange != nil {
			merged.LabelChange = next.LabelChange
		}
		return &merged
	case prev.Kind == types.ChangeModification && next.Kind == types.ChangeDeletion:
		merged := *next
		return &merged
	default:
		// Deletion followed by Addition (unit re-registered under the
		// same id within the window), or two Additions in a row: the
		// later entry wins outright.
		merged := *next
		return &merged
	}
}

// instanceChangeState tracks the net effect of a sequence of ADD/DELETE
// entries seen for one instance id: live is false once the sequence
// has canceled out (the instance id contributes nothing to the merged
// window), matching the same collapse a consumer would observe if it
// had seen every individual change rather than a coalesced batch.
type instanceChangeState struct {
	op   types.InstanceChangeOp
	inst *types.InstanceInfo
	live bool
}

// collapseInstanceChanges merges two ordered InstanceChange slices for
// the same unit into one, canceling opposite ops seen back-to-back for
// the same instance id (ADD+DELETE or DELETE+ADD = nothing) rather
// than concatenating them. A third op flips the net state again
// (DELETE+ADD+DELETE = DELETE; ADD+DELETE+ADD = ADD), so the result
// always reflects only the final live op per id, in first-seen order.
func collapseInstanceChanges(a, b []types.InstanceChange) []types.InstanceChange {
	order := make([]string, 0, len(a)+len(b))
	byID := make(map[string]*instanceChangeState, len(a)+len(b))

	apply := func(ic types.InstanceChange) {
		if ic.Instance == nil {
			return
		}
		id := ic.Instance.InstanceID
		st, ok := byID[id]
		if !ok {
			st = &instanceChangeState{}
			byID[id] = st
			order = append(order, id)
		}
		if st.live && st.op != ic.Op {
			st.live = false
			return
		}
		st.op = ic.Op
		st.inst = ic.Instance
		st.live = true
	}

	for _, ic := range a {
		apply(ic)
	}
	for _, ic := range b {
		apply(ic)
	}

	var out []types.InstanceChange
	for _, id := range order {
		st := byID[id]
		if !st.live {
			continue
		}
		out = append(out, types.InstanceChange{Op: st.op, Instance: st.inst})
	}
	return out
}
