package service

import (
	"testing"
	"time"

	registrystore "github.com/metanexus/metadata-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireConflict(t *testing.T) {
	m := NewLockManager(time.Minute)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	assert.Equal(t, "alice", m.Holder("ent_1"))

	err := m.Acquire("ent_1", "bob")
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The holder can re-acquire.
	require.NoError(t, m.Acquire("ent_1", "alice"))
}

func TestLockReleaseFreesForOthers(t *testing.T) {
	m := NewLockManager(time.Minute)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	m.Release("ent_1", "alice")
	assert.Empty(t, m.Holder("ent_1"))

	require.NoError(t, m.Acquire("ent_1", "bob"))
}

func TestLockRelease_WrongOwnerIgnored(t *testing.T) {
	m := NewLockManager(time.Minute)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	m.Release("ent_1", "bob")
	assert.Equal(t, "alice", m.Holder("ent_1"))
}

func TestLockExpiryAutoReleases(t *testing.T) {
	m := NewLockManager(20 * time.Millisecond)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	assert.Eventually(t, func() bool {
		return m.Holder("ent_1") == ""
	}, time.Second, 5*time.Millisecond)
}

func TestLockReacquireResetsTimer(t *testing.T) {
	m := NewLockManager(60 * time.Millisecond)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, m.Acquire("ent_1", "alice"))
	time.Sleep(40 * time.Millisecond)

	// The first timer would have fired by now; the reset keeps the lock.
	assert.Equal(t, "alice", m.Holder("ent_1"))
}

func TestLockReleaseThenReacquireSurvivesOldTimer(t *testing.T) {
	m := NewLockManager(30 * time.Millisecond)

	require.NoError(t, m.Acquire("ent_1", "alice"))
	m.Release("ent_1", "alice")
	require.NoError(t, m.Acquire("ent_1", "alice"))
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, "alice", m.Holder("ent_1"))
}
