package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopress/autopress/internal/models"
)

func newTestLedger(t *testing.T, ttl time.Duration) (*PairLedger, *models.ThemeCandidate) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), ttl)
	candidate := seedCandidate(t, db, "阴影工作者", "荣格心理学", "投射")
	return ledger, candidate
}

func TestReserveAndConflict(t *testing.T) {
	ledger, candidate := newTestLedger(t, time.Hour)

	require.NoError(t, ledger.Reserve(candidate.ID, "run-a"))
	// same run may re-reserve its own lock
	require.NoError(t, ledger.Reserve(candidate.ID, "run-a"))
	// another run is rejected while the lock is live
	assert.ErrorIs(t, ledger.Reserve(candidate.ID, "run-b"), ErrBusy)
}

func TestReserveTakesOverExpiredLock(t *testing.T) {
	ledger, candidate := newTestLedger(t, 50*time.Millisecond)

	require.NoError(t, ledger.Reserve(candidate.ID, "run-a"))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, ledger.Reserve(candidate.ID, "run-b"))
}

func TestReleaseClearsOnlyOwnLocks(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)
	a := seedCandidate(t, db, "roleA", "workA", "kwA")
	b := seedCandidate(t, db, "roleB", "workB", "kwB")

	require.NoError(t, ledger.Reserve(a.ID, "run-a"))
	require.NoError(t, ledger.Reserve(b.ID, "run-b"))
	require.NoError(t, ledger.Release("run-a"))

	// run-a's candidate is free again, run-b's is still held
	require.NoError(t, ledger.Reserve(a.ID, "run-c"))
	assert.ErrorIs(t, ledger.Reserve(b.ID, "run-c"), ErrBusy)
}

func TestReclaimExpired(t *testing.T) {
	ledger, candidate := newTestLedger(t, 50*time.Millisecond)

	require.NoError(t, ledger.Reserve(candidate.ID, "run-a"))
	time.Sleep(60 * time.Millisecond)

	n, err := ledger.ReclaimExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, ledger.Reserve(candidate.ID, "run-b"))
}

func TestReserveKeepsSlugColumns(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)
	candidate := seedCandidate(t, db, "阴影工作者", "荣格心理学", "投射")

	// the lock columns are driven by map updates, which must not disturb
	// the slug sync hook
	require.NoError(t, ledger.Reserve(candidate.ID, "run-a"))
	require.NoError(t, ledger.Release("run-a"))

	var cand models.ThemeCandidate
	require.NoError(t, db.First(&cand, candidate.ID).Error)
	assert.Equal(t, candidate.RoleSlug, cand.RoleSlug)
	assert.Equal(t, candidate.WorkSlug, cand.WorkSlug)
	assert.Equal(t, candidate.KeywordSlug, cand.KeywordSlug)
	assert.NotEmpty(t, cand.KeywordSlug)
	assert.Nil(t, cand.LockedByRunID)
}

func TestAddCandidatesSkipsExistingKeywords(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)
	seedCandidate(t, db, "r1", "w1", "k1")

	added, err := ledger.AddCandidates([]models.ThemeCandidate{
		{Role: "r1", Work: "w1", Keyword: "k1", Lang: "zh", Active: true},
		{Role: "r2", Work: "w2", Keyword: "k2", Lang: "zh", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	var fresh models.ThemeCandidate
	require.NoError(t, db.Where("keyword = ?", "k2").First(&fresh).Error)
	assert.NotEmpty(t, fresh.KeywordSlug)
	assert.True(t, fresh.Active)

	// re-running the same derivation adds nothing
	added, err = ledger.AddCandidates([]models.ThemeCandidate{
		{Role: "r2", Work: "w2", Keyword: "k2", Lang: "zh", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestCommitUsedEnforcesUniqueness(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)
	candidate := seedCandidate(t, db, "role", "work", "keyword")

	now := time.Now().UTC()
	require.NoError(t, ledger.CommitUsed(db, candidate, "run-a", now, "abcd"))

	// same identity again, even from another run, hits the hard guard
	clone := seedCandidate(t, db, "Role", "WORK", "Keyword!")
	assert.ErrorIs(t, ledger.CommitUsed(db, clone, "run-b", now, "abcd"), ErrAlreadyUsed)

	var cand models.ThemeCandidate
	require.NoError(t, db.First(&cand, candidate.ID).Error)
	require.NotNil(t, cand.UsedAt)
	assert.Nil(t, cand.LockedByRunID)
}

func TestSelectCandidatesSkipsUsedLockedAndCoolingDown(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)

	used := seedCandidate(t, db, "r1", "w1", "k1")
	locked := seedCandidate(t, db, "r2", "w2", "k2")
	cooling := seedCandidate(t, db, "r3", "w3", "k3")
	free := seedCandidate(t, db, "r4", "w4", "k4")

	require.NoError(t, ledger.CommitUsed(db, used, "run-old", time.Now().UTC(), ""))
	require.NoError(t, ledger.Reserve(locked.ID, "run-other"))

	// a recent used_pairs row for k3 puts the keyword in cooldown even
	// though the (r3, w3, k3) triple itself was never consumed
	require.NoError(t, db.Create(&models.UsedPair{
		RoleSlug:    "other-role",
		WorkSlug:    "other-work",
		KeywordSlug: cooling.KeywordSlug,
		Lang:        "zh",
		UsedOn:      time.Now().UTC().Format("2006-01-02"),
		FirstUsedAt: time.Now().UTC(),
		LastUsedAt:  time.Now().UTC(),
	}).Error)

	got, err := ledger.SelectCandidates(10, "zh", 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, free.ID, got[0].ID)
}

func TestSelectCandidatesCooldownExpiry(t *testing.T) {
	db := newTestDB(t)
	ledger := NewPairLedger(db, testLogger(), time.Hour)
	candidate := seedCandidate(t, db, "r1", "w1", "k1")

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.UsedPair{
		RoleSlug:    "past-role",
		WorkSlug:    "past-work",
		KeywordSlug: candidate.KeywordSlug,
		Lang:        "zh",
		UsedOn:      old.Format("2006-01-02"),
		FirstUsedAt: old,
		LastUsedAt:  old,
	}).Error)

	got, err := ledger.SelectCandidates(10, "zh", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
