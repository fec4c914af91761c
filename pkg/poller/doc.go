// Package poller implements the domain scheduler's resource poller: a
// periodic loop that pulls each registered local's change-log window
// via pkg/underlayer and folds it into the domain's
// pkg/resourceview.ResourceView, so the schedule queue's next decision
// sees current state (spec §2's "Resource Poller" row, §6's pull
// protocol).
package poller
