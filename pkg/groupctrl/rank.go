package groupctrl

import (
	"encoding/json"
	"sort"
)

// groupRunningInfoKey is the create-option key every bound member of a
// group carries, matching the wire name local proxies and instance
// runtimes already key off of.
const groupRunningInfoKey = "FUNCTION_GROUP_RUNNING_INFO"

// rankedMember is one group member's position within the globally
// ranked FUNCTION_GROUP_RUNNING_INFO payload, so a running instance
// can address its group peers by rank instead of by instance id.
type rankedMember struct {
	RequestID string `json:"request_id"`
	UnitID    string `json:"unit_id"`
	DeviceID  string `json:"device_id"`
	Rank      int    `json:"rank"`
}

type groupRunningInfo struct {
	GroupID string         `json:"group_id"`
	Size    int            `json:"size"`
	Members []rankedMember `json:"members"`
}

// buildRunningInfo assigns a global rank to every reservation, ordered
// by unit id ascending then device id ascending (ties broken by
// request id for determinism), and renders the shared
// FUNCTION_GROUP_RUNNING_INFO payload every bound member carries.
// A reservation with no device slice (scalar-only requests) ranks by
// unit id alone, with an empty device id.
func buildRunningInfo(groupID string, reservations []*reservation) (string, error) {
	type entry struct {
		requestID string
		unitID    string
		deviceID  string
	}

	var entries []entry
	for _, r := range reservations {
		devices := r.deviceIDs
		if len(devices) == 0 {
			devices = []string{""}
		}
		for _, d := range devices {
			entries = append(entries, entry{requestID: r.requestID, unitID: r.unitID, deviceID: d})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].unitID != entries[j].unitID {
			return entries[i].unitID < entries[j].unitID
		}
		if entries[i].deviceID != entries[j].deviceID {
			return entries[i].deviceID < entries[j].deviceID
		}
		return entries[i].requestID < entries[j].requestID
	})

	info := groupRunningInfo{GroupID: groupID, Size: len(entries)}
	for i, e := range entries {
		info.Members = append(info.Members, rankedMember{
			RequestID: e.requestID,
			UnitID:    e.unitID,
			DeviceID:  e.deviceID,
			Rank:      i,
		})
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
