package repositories

import (
	"context"
	"entryready/internal/apperrors"
	. "entryready/internal/models"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func success(arrCardNo string) SubmissionResult {
	return SubmissionResult{
		Status:    DACStatusSuccess,
		ArrCardNo: arrCardNo,
		QRURI:     "qr://" + arrCardNo,
		PDFURL:    "https://example.com/" + arrCardNo + ".pdf",
	}
}

func TestDACRepository_SupersedeInvariant(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d successful submissions", k), func(t *testing.T) {
			db := newTestDB(t)
			repo := NewDACRepository(db)
			ctx := context.Background()
			entry := createEntry(t, db, "user-1")

			var last *DigitalArrivalCard
			for i := range k {
				dac, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", success(fmt.Sprintf("TH%03d", i)), nil)
				require.NoError(t, err)
				assert.Equal(t, i+1, dac.Version)
				last = dac
			}

			history, err := repo.History(ctx, entry.ID, "TDAC")
			require.NoError(t, err)
			require.Len(t, history, k)

			byID := map[string]DigitalArrivalCard{}
			current := 0
			for _, dac := range history {
				byID[dac.ID] = dac
				if dac.IsCurrent() {
					current++
					assert.Equal(t, last.ID, dac.ID)
				}
			}
			assert.Equal(t, 1, current)

			for _, dac := range history {
				if dac.ID == last.ID {
					continue
				}
				assert.True(t, dac.IsSuperseded)
				require.NotNil(t, dac.SupersededBy)
				require.NotNil(t, dac.SupersededAt)
				require.NotNil(t, dac.SupersededReason)
				assert.Equal(t, SupersededReasonReplaced, *dac.SupersededReason)

				replacement, ok := byID[*dac.SupersededBy]
				require.True(t, ok)
				assert.Greater(t, replacement.Version, dac.Version)
			}

			got, err := repo.GetCurrent(ctx, entry.ID, "TDAC")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, last.ID, got.ID)
		})
	}
}

func TestDACRepository_FailedSubmissionsNeverSupersede(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db)
	ctx := context.Background()
	entry := createEntry(t, db, "user-1")

	current, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", success("TH001"), FieldDigests{"passport.surname": "abc"})
	require.NoError(t, err)

	failed, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", SubmissionResult{
		Status:       DACStatusFailed,
		ErrorDetails: "passport number rejected",
	}, FieldDigests{"passport.surname": "def"})
	require.NoError(t, err)
	assert.Equal(t, DACStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.Version)
	assert.Nil(t, failed.SnapshotDigests)

	got, err := repo.GetCurrent(ctx, entry.ID, "TDAC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, current.ID, got.ID)
	assert.Equal(t, FieldDigests{"passport.surname": "abc"}, got.SnapshotDigests)
}

func TestDACRepository_CardTypesAreIndependent(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db)
	ctx := context.Background()
	entry := createEntry(t, db, "user-1")

	_, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", success("TH001"), nil)
	require.NoError(t, err)
	_, err = repo.RecordSubmission(ctx, entry.ID, "HEALTH", success("HD001"), nil)
	require.NoError(t, err)

	current, err := repo.ListCurrent(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, current, 2)
}

func TestDACRepository_GetCurrentEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db)

	got, err := repo.GetCurrent(context.Background(), "entry", "TDAC")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestDACRepository_RejectsMalformedResults(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db)
	ctx := context.Background()
	entry := createEntry(t, db, "user-1")

	tests := []struct {
		name   string
		result SubmissionResult
	}{
		{"pending is not a result", SubmissionResult{Status: DACStatusPending}},
		{"unknown status", SubmissionResult{Status: "ok"}},
		{"success without card number", SubmissionResult{Status: DACStatusSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", tt.result, nil)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestDACRepository_PendingAttemptLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db)
	ctx := context.Background()
	entry := createEntry(t, db, "user-1")

	first, err := repo.RecordSubmission(ctx, entry.ID, "TDAC", success("TH001"), nil)
	require.NoError(t, err)

	pending, err := repo.BeginAttempt(ctx, entry.ID, "TDAC")
	require.NoError(t, err)
	assert.Equal(t, DACStatusPending, pending.Status)
	assert.Equal(t, 2, pending.Version)

	_, err = repo.BeginAttempt(ctx, entry.ID, "TDAC")
	assert.ErrorIs(t, err, apperrors.ErrSubmissionInFlight)

	got, err := repo.GetCurrent(ctx, entry.ID, "TDAC")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	completed, err := repo.CompleteAttempt(ctx, pending.ID, success("TH002"), FieldDigests{"travelInfo.flightNumber": "x"})
	require.NoError(t, err)
	assert.True(t, completed.IsCurrent())

	got, err = repo.GetCurrent(ctx, entry.ID, "TDAC")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, got.ID)

	history, err := repo.History(ctx, entry.ID, "TDAC")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsSuperseded)
	assert.Equal(t, pending.ID, *history[0].SupersededBy)

	_, err = repo.CompleteAttempt(ctx, pending.ID, success("TH003"), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = repo.CompleteAttempt(ctx, "missing", success("TH003"), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDACRepository_FailStalePending(t *testing.T) {
	db := newTestDB(t)
	repo := NewDACRepository(db).(*dacRepository)
	ctx := context.Background()
	entry := createEntry(t, db, "user-1")

	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return start }
	stale, err := repo.BeginAttempt(ctx, entry.ID, "TDAC")
	require.NoError(t, err)

	repo.now = func() time.Time { return start.Add(9 * time.Minute) }
	fresh, err := repo.BeginAttempt(ctx, entry.ID, "HEALTH")
	require.NoError(t, err)

	repo.now = func() time.Time { return start.Add(15 * time.Minute) }
	failed, err := repo.FailStalePending(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	history, err := repo.History(ctx, entry.ID, "")
	require.NoError(t, err)
	statuses := map[string]DACStatus{}
	for _, dac := range history {
		statuses[dac.ID] = dac.Status
	}
	assert.Equal(t, DACStatusFailed, statuses[stale.ID])
	assert.Equal(t, DACStatusPending, statuses[fresh.ID])

	_, err = repo.BeginAttempt(ctx, entry.ID, "TDAC")
	assert.NoError(t, err)
}
