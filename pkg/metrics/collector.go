package metrics

import (
	"time"

	"github.com/cuemby/yuanrong-scheduler/pkg/resourceview"
	"github.com/cuemby/yuanrong-scheduler/pkg/schedqueue"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// RaftStatus is the subset of pkg/ha's leadership tracker Collector
// needs; kept as a local interface so this package never imports ha.
type RaftStatus interface {
	IsLeader() bool
	AppliedIndex() uint64
}

// Collector periodically samples a domain scheduler's resource view
// and schedule queues into the package-level gauge metrics.
type Collector struct {
	view    *resourceview.ResourceView
	primary *schedqueue.Queue
	virtual *schedqueue.Queue
	raft    RaftStatus

	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector wires a Collector over the components whose point-in-time
// state cannot be captured as a counter/histogram sample at the call
// site (queue depth, bucket occupancy, raft leadership). raft may be nil
// on a process not participating in the HA group.
func NewCollector(view *resourceview.ResourceView, primary, virtual *schedqueue.Queue, raft RaftStatus) *Collector {
	return &Collector{
		view:     view,
		primary:  primary,
		virtual:  virtual,
		raft:     raft,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection on its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueDepth()
	c.collectResourceView()
	c.collectRaft()
}

func (c *Collector) collectQueueDepth() {
	if c.primary != nil {
		QueueDepth.WithLabelValues("primary").Set(float64(c.primary.Len()))
	}
	if c.virtual != nil {
		QueueDepth.WithLabelValues("virtual").Set(float64(c.virtual.Len()))
	}
}

func (c *Collector) collectResourceView() {
	if c.view == nil {
		return
	}
	units := c.view.ListUnits()

	statusCounts := make(map[types.UnitStatus]int)
	policyCounts := make(map[types.SchedulePolicyName]int)
	shapeCounts := make(map[string]map[string]int) // "ratio/mem" -> kind -> count

	for _, u := range units {
		statusCounts[u.Status]++
		for _, inst := range u.Instances {
			policyCounts[inst.ScheduleOption.SchedulePolicyName]++
		}
		for ratio, byMem := range u.BucketIndexes {
			for mem, bucket := range byMem {
				shape := ratio + "/" + mem
				if shapeCounts[shape] == nil {
					shapeCounts[shape] = make(map[string]int)
				}
				shapeCounts[shape]["monopoly"] += bucket.Total.MonopolyNum
				shapeCounts[shape]["shared"] += bucket.Total.SharedNum
			}
		}
	}

	for status, count := range statusCounts {
		ResourceUnitsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for policy, count := range policyCounts {
		name := string(policy)
		if name == "" {
			name = string(types.SchedulePolicyDefault)
		}
		InstancesTotal.WithLabelValues(name).Set(float64(count))
	}
	for shape, kinds := range shapeCounts {
		for kind, count := range kinds {
			BucketOccupancy.WithLabelValues(shape, kind).Set(float64(count))
		}
	}
}

func (c *Collector) collectRaft() {
	if c.raft == nil {
		return
	}
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftAppliedIndex.Set(float64(c.raft.AppliedIndex()))
}
