package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transcriptd/internal/transcript"
)

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Duration{
		"0:00":    0,
		"0:07":    7 * time.Second,
		"1:05":    65 * time.Second,
		"12:34":   12*time.Minute + 34*time.Second,
		"1:02:03": time.Hour + 2*time.Minute + 3*time.Second,
		" 2:30 ":  2*time.Minute + 30*time.Second,
		"42":      42 * time.Second,
	}
	for ts, want := range cases {
		got, err := parseTimestamp(ts)
		require.NoError(t, err, "input %q", ts)
		require.Equal(t, want, got, "input %q", ts)
	}
}

func TestParseTimestampRejectsMalformedInput(t *testing.T) {
	for _, ts := range []string{"", "a:b", "1:2:3:4", "-1:00", "1:-2"} {
		_, err := parseTimestamp(ts)
		require.Error(t, err, "input %q", ts)
	}
}

func TestParseSegmentsDerivesDurations(t *testing.T) {
	raw := []rawSegment{
		{Start: "0:00", Text: "intro"},
		{Start: "0:04", Text: "middle"},
		{Start: "0:10", Text: "outro"},
	}
	segments, err := parseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Equal(t, 4*time.Second, segments[0].Duration)
	require.Equal(t, 6*time.Second, segments[1].Duration)
	require.Zero(t, segments[2].Duration, "last segment has no successor to derive a duration from")
}

func TestParseSegmentsSkipsEmptyText(t *testing.T) {
	raw := []rawSegment{
		{Start: "0:00", Text: "kept"},
		{Start: "0:05", Text: ""},
		{Start: "0:10", Text: "also kept"},
	}
	segments, err := parseSegments(raw)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.Equal(t, "kept", segments[0].Text)
	require.Equal(t, "also kept", segments[1].Text)
	require.Equal(t, 10*time.Second, segments[0].Duration)
}

func TestParseSegmentsReportsBadTimestampAsTransient(t *testing.T) {
	_, err := parseSegments([]rawSegment{{Start: "oops", Text: "x"}})
	var transient *transcript.TransientError
	require.ErrorAs(t, err, &transient)
}

func TestNewChromedpDriverAppliesDefaults(t *testing.T) {
	d := NewChromedpDriver(PageConfig{})
	require.NotEmpty(t, d.cfg.PanelSelectors)
	require.NotEmpty(t, d.cfg.OpenScripts)
	require.NotEmpty(t, d.cfg.BlockedURLPatterns)
	require.Positive(t, d.cfg.SettleDelay)
	require.Positive(t, d.cfg.MaxScrollRounds)
}
