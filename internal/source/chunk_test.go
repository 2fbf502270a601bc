package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWindow_SingleDay(t *testing.T) {
	win := Window{From: day(2025, 7, 1), To: day(2025, 7, 1)}
	chunks := SplitWindow(win, 1)
	require.Len(t, chunks, 1)
	assert.Equal(t, win, chunks[0])
}

func TestSplitWindow_DailyChunks(t *testing.T) {
	win := Window{From: day(2025, 7, 1), To: day(2025, 7, 3)}
	chunks := SplitWindow(win, 1)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, day(2025, 7, 1+i), c.From)
		assert.Equal(t, day(2025, 7, 1+i), c.To)
	}
}

func TestSplitWindow_LastChunkClamped(t *testing.T) {
	// Ten days in chunks of seven: 7 + 3.
	win := Window{From: day(2025, 7, 1), To: day(2025, 7, 10)}
	chunks := SplitWindow(win, 7)
	require.Len(t, chunks, 2)
	assert.Equal(t, day(2025, 7, 1), chunks[0].From)
	assert.Equal(t, day(2025, 7, 7), chunks[0].To)
	assert.Equal(t, day(2025, 7, 8), chunks[1].From)
	assert.Equal(t, day(2025, 7, 10), chunks[1].To)
}

func TestSplitWindow_InvertedWindow(t *testing.T) {
	win := Window{From: day(2025, 7, 10), To: day(2025, 7, 1)}
	assert.Nil(t, SplitWindow(win, 1))
}

func TestSplitWindow_ZeroMaxDaysClampsToOne(t *testing.T) {
	win := Window{From: day(2025, 7, 1), To: day(2025, 7, 2)}
	assert.Len(t, SplitWindow(win, 0), 2)
}

func TestSplitWindow_TruncatesTimeOfDay(t *testing.T) {
	win := Window{
		From: time.Date(2025, 7, 1, 14, 30, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 2, 9, 15, 0, 0, time.UTC),
	}
	chunks := SplitWindow(win, 1)
	require.Len(t, chunks, 2)
	assert.Equal(t, day(2025, 7, 1), chunks[0].From)
	assert.Equal(t, day(2025, 7, 2), chunks[1].To)
}

func TestSplitWindow_ChunksAreContiguousAndCoverWindow(t *testing.T) {
	win := Window{From: day(2025, 1, 15), To: day(2025, 3, 20)}
	for _, maxDays := range []int{1, 2, 7, 30, 365} {
		chunks := SplitWindow(win, maxDays)
		require.NotEmpty(t, chunks, "maxDays=%d", maxDays)

		assert.Equal(t, win.From, chunks[0].From, "maxDays=%d", maxDays)
		assert.Equal(t, win.To, chunks[len(chunks)-1].To, "maxDays=%d", maxDays)

		for i, c := range chunks {
			assert.False(t, c.To.Before(c.From), "maxDays=%d chunk=%d", maxDays, i)
			assert.LessOrEqual(t, c.Days(), maxDays, "maxDays=%d chunk=%d", maxDays, i)
			if i > 0 {
				// Each chunk starts the day after the previous one ends.
				assert.Equal(t, chunks[i-1].To.AddDate(0, 0, 1), c.From, "maxDays=%d chunk=%d", maxDays, i)
			}
		}
	}
}

func TestSplitWindow_CrossesMonthBoundary(t *testing.T) {
	win := Window{From: day(2025, 6, 29), To: day(2025, 7, 2)}
	chunks := SplitWindow(win, 1)
	require.Len(t, chunks, 4)
	assert.Equal(t, day(2025, 6, 30), chunks[1].From)
	assert.Equal(t, day(2025, 7, 1), chunks[2].From)
}
