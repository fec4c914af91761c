/*
Package storage provides BoltDB-backed persistence for a domain scheduler
replica: the group records it owns and named resource-unit snapshots.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              BoltStore                       │          │
	│  │  - File: <dataDir>/scheduler.db              │          │
	│  │  - Format: B+tree with MVCC                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                 │          │
	│  │  groups     (<request-id>/<group-id>)        │          │
	│  │  snapshots  (snapshot name)                  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Groups

pkg/groupctrl writes a GroupInfo when it enters Scheduling and again
when it reaches Running or Failed. The key embeds both the originating request id and the
group id, so a replica recovering after a restart can enumerate its
own groups with ListGroupsByOwner without a secondary index:

	groups, err := store.ListGroupsByOwner(localID)
	for _, g := range groups {
		// re-attach to underlayer state via g.RequestID/g.GroupID
	}

Groups whose OwnerProxy does not match the recovering replica are left
untouched; they belong to another domain scheduler and will be
recovered by it.

Reaching GroupStatusRunning or GroupStatusFailed does not delete the
record; it is deleted only when the group is released
(groupctrl.Controller.Release).

# Snapshots

SaveSnapshot/LoadSnapshot store and load a list of resource units
under a name. Nothing in the scheduler calls them today: no snapshot
is taken periodically, and none is loaded on start or on a change of
leader.

# Usage

	store, err := storage.NewBoltStore("/var/lib/scheduler/domain-1")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	err = store.SaveGroup(req.RequestID, group.GroupID, group)

	group, err := store.GetGroup(requestID, groupID)

	err = store.DeleteGroup(requestID, groupID)

	err = store.SaveSnapshot("latest", view.ListUnits())
	units, err := store.LoadSnapshot("latest")

# Design Notes

Upsert pattern: SaveGroup always overwrites, so callers never need an
existence check before the first write.

Idempotent deletes: DeleteGroup returns nil if the key is already
absent, so teardown code never has to special-case "already removed".

Transaction model follows bbolt's own: db.View for concurrent reads,
db.Update for serialized, fsync'd writes. A BoltStore is safe for
concurrent use by multiple goroutines.

# See Also

  - pkg/groupctrl for the in-memory group lifecycle this package persists
  - pkg/driver, which opens one BoltStore per replica under
    DataDir/groups; pkg/ha's leadership does not gate writes to it
  - pkg/types for GroupInfo and ResourceUnit definitions
*/
package storage
