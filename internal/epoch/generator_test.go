package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestGenerateOneYearBackIsMonthly(t *testing.T) {
	now := time.Date(2020, time.March, 15, 10, 30, 0, 0, time.UTC)

	epochs := Generate(now, 1)

	require.Len(t, epochs, 13)
	require.Equal(t, time.Date(2019, time.March, 1, 0, 0, 0, 0, time.UTC), epochs[0].Start)
	require.Equal(t, time.Date(2019, time.March, 31, 23, 59, 59, 999999999, time.UTC), epochs[0].End)
	require.Equal(t, time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), epochs[12].Start)
	require.Equal(t, time.Date(2020, time.March, 31, 23, 59, 59, 999999999, time.UTC), epochs[12].End)
	require.Equal(t, time.Date(2020, time.February, 29, 23, 59, 59, 999999999, time.UTC), epochs[11].End)
	require.NoError(t, domain.ValidateEpochs(epochs))
}

func TestGenerateIsDeterministicAndNeverStartsInFuture(t *testing.T) {
	now := time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)

	first := Generate(now, 3)
	second := Generate(now, 3)

	require.Equal(t, first, second)
	require.Len(t, first, 37)
	for _, e := range first {
		require.False(t, e.Start.After(now), "epoch %s starts after now", e)
		require.False(t, e.Start.After(e.End))
	}
}

func TestGenerateFirstOfMonthIncludesCurrentMonth(t *testing.T) {
	now := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)

	epochs := Generate(now, 0)

	require.Len(t, epochs, 1)
	require.Equal(t, now, epochs[0].Start)
}

func TestGenerateNegativePeriodsIsEmpty(t *testing.T) {
	epochs := Generate(time.Now(), -1)

	require.NotNil(t, epochs)
	require.Empty(t, epochs)
	require.True(t, EarliestStart(epochs).IsZero())
}

func TestGenerateUsesLocationOfNow(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2020, time.January, 10, 12, 0, 0, 0, loc)

	epochs := Generate(now, 0)

	require.Len(t, epochs, 1)
	require.Equal(t, loc, epochs[0].Start.Location())
	require.Equal(t, time.Date(2020, time.January, 1, 0, 0, 0, 0, loc), EarliestStart(epochs))
}

func TestValidateEpochsRejectsInvertedAndOverlapping(t *testing.T) {
	jan := domain.Epoch{
		Start: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, time.January, 31, 0, 0, 0, 0, time.UTC),
	}
	inverted := domain.Epoch{Start: jan.End, End: jan.Start}
	overlap := domain.Epoch{Start: jan.End, End: jan.End.AddDate(0, 1, 0)}

	require.ErrorIs(t, domain.ValidateEpochs([]domain.Epoch{inverted}), domain.ErrInvalidEpochs)
	require.ErrorIs(t, domain.ValidateEpochs([]domain.Epoch{jan, overlap}), domain.ErrInvalidEpochs)
}
