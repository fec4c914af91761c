package storage

import (
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// Store defines the persistence interface a domain scheduler replica uses
// to survive restarts and HA failover. It holds two kinds of records:
//
//   - GroupInfo: the authoritative state of every in-flight or committed
//     function group, keyed by request id and group id so a recovering
//     replica can tell which groups it still owns.
//   - Resource unit snapshots: a named list of resource units, saved
//     and loaded only on an explicit call.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveGroup upserts a group's persisted state.
	SaveGroup(requestID, groupID string, group *types.GroupInfo) error
	// GetGroup retrieves one group by request and group id.
	GetGroup(requestID, groupID string) (*types.GroupInfo, error)
	// ListGroups returns every persisted group, for recovery on startup.
	ListGroups() ([]*types.GroupInfo, error)
	// ListGroupsByOwner returns the groups whose OwnerProxy matches
	// localID, i.e. the ones this replica should recover.
	ListGroupsByOwner(localID string) ([]*types.GroupInfo, error)
	// DeleteGroup removes a group's persisted state once it is fully
	// committed or torn down. Idempotent.
	DeleteGroup(requestID, groupID string) error

	// SaveSnapshot persists a full resource-unit checkpoint under name,
	// replacing any previous snapshot with the same name.
	SaveSnapshot(name string, units []*types.ResourceUnit) error
	// LoadSnapshot retrieves a previously saved checkpoint.
	LoadSnapshot(name string) ([]*types.ResourceUnit, error)

	// Close releases the underlying database handle.
	Close() error
}
