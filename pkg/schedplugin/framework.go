package schedplugin

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// Framework runs a configured set of plugins over a batch of
// candidate units for one ScheduleRequest.
type Framework struct {
	Filters  []FilterPlugin
	Scorers  []ScorePlugin
	Reserve  ReservePlugin
}

// Candidate is a scored, still-feasible unit.
type Candidate struct {
	Unit  *types.ResourceUnit
	Score NodeScore
}

// RunOne filters then scores a single unit against ctx, returning the
// combined score (the sum of every scorer's contribution) or the
// first filter failure.
func (fw *Framework) RunOne(ctx *PreAllocatedContext, req *types.ScheduleRequest, unit *types.ResourceUnit) (NodeScore, error) {
	for _, filter := range fw.Filters {
		result := filter.Filter(ctx, req, unit)
		if !result.Passed() {
			return NodeScore{}, result.Err
		}
	}

	total := NodeScore{}
	for _, scorer := range fw.Scorers {
		s := scorer.Score(ctx, req, unit)
		total.Score += s.Score
		if s.HeteroProductName != "" {
			total.HeteroProductName = s.HeteroProductName
			total.RealDeviceIDs = s.RealDeviceIDs
			total.AllocatedVectors = s.AllocatedVectors
		}
	}
	return total, nil
}

// RunBatch filters and scores every candidate unit, returning the
// feasible ones ranked best-first. Units rejected by a filter are
// dropped silently; callers that need the rejection reasons should
// call RunOne directly per unit.
func (fw *Framework) RunBatch(ctx *PreAllocatedContext, req *types.ScheduleRequest, units []*types.ResourceUnit) ([]Candidate, error) {
	var candidates []Candidate
	var errs []error
	for _, unit := range units {
		score, err := fw.RunOne(ctx, req, unit)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		candidates = append(candidates, Candidate{Unit: unit, Score: score})
	}
	if len(candidates) == 0 {
		return nil, schederr.Collect(errs, schederr.CodeResourceNotEnough)
	}
	sortCandidatesDescending(candidates)
	return candidates, nil
}

func sortCandidatesDescending(candidates []Candidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Score.Score > candidates[j-1].Score.Score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}
