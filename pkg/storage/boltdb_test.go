package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveGetGroup(t *testing.T) {
	store := newTestStore(t)
	group := &types.GroupInfo{
		RequestID:  "req-1",
		GroupID:    "grp-1",
		OwnerProxy: "local-a",
		Status:     types.GroupStatusScheduling,
	}
	require.NoError(t, store.SaveGroup(group.RequestID, group.GroupID, group))

	got, err := store.GetGroup("req-1", "grp-1")
	require.NoError(t, err)
	assert.Equal(t, group.OwnerProxy, got.OwnerProxy)
	assert.Equal(t, types.GroupStatusScheduling, got.Status)
}

func TestGetGroupNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetGroup("missing", "missing")
	assert.Equal(t, schederr.CodeNotFound, schederr.CodeOf(err))
}

func TestListGroupsByOwner(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveGroup("req-1", "grp-1", &types.GroupInfo{RequestID: "req-1", GroupID: "grp-1", OwnerProxy: "local-a"}))
	require.NoError(t, store.SaveGroup("req-2", "grp-1", &types.GroupInfo{RequestID: "req-2", GroupID: "grp-1", OwnerProxy: "local-b"}))
	require.NoError(t, store.SaveGroup("req-3", "grp-1", &types.GroupInfo{RequestID: "req-3", GroupID: "grp-1", OwnerProxy: "local-a"}))

	owned, err := store.ListGroupsByOwner("local-a")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestDeleteGroupIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveGroup("req-1", "grp-1", &types.GroupInfo{RequestID: "req-1", GroupID: "grp-1"}))
	require.NoError(t, store.DeleteGroup("req-1", "grp-1"))
	require.NoError(t, store.DeleteGroup("req-1", "grp-1")) // second delete is a no-op

	_, err := store.GetGroup("req-1", "grp-1")
	assert.Equal(t, schederr.CodeNotFound, schederr.CodeOf(err))
}

func TestSaveLoadSnapshot(t *testing.T) {
	store := newTestStore(t)
	units := []*types.ResourceUnit{
		{ID: "unit-1", Capacity: types.Resources{}, Instances: map[string]*types.InstanceInfo{}},
		{ID: "unit-2", Capacity: types.Resources{}, Instances: map[string]*types.InstanceInfo{}},
	}
	require.NoError(t, store.SaveSnapshot("latest", units))

	got, err := store.LoadSnapshot("latest")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"unit-1", "unit-2"}, []string{got[0].ID, got[1].ID})
}

func TestLoadSnapshotNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadSnapshot("missing")
	assert.Equal(t, schederr.CodeNotFound, schederr.CodeOf(err))
}
