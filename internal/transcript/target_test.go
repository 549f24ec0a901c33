package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTargetNormalizesSupportedShapes(t *testing.T) {
	inputs := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ/",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/live/dQw4w9WgXcQ",
		"dQw4w9WgXcQ",
		"  https://www.youtube.com/watch?v=dQw4w9WgXcQ  ",
	}
	for _, raw := range inputs {
		target, err := ParseTarget(raw)
		require.NoError(t, err, "input %q", raw)
		require.Equal(t, "dQw4w9WgXcQ", target.VideoID, "input %q", raw)
		require.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", target.WatchURL)
	}
}

func TestParseTargetRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"https://example.org/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/playlist?list=PL123",
		"https://www.youtube.com/watch?v=tooshort",
		"https://youtu.be/",
		"not a url at all",
	}
	for _, raw := range cases {
		_, err := ParseTarget(raw)
		var permanent *PermanentError
		require.ErrorAs(t, err, &permanent, "input %q", raw)
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, KindQueueFull, Classify(&QueueFullError{Size: 4, MaxSize: 4}))
	require.Equal(t, KindQueueTimeout, Classify(&QueueTimeoutError{}))
	require.Equal(t, KindQueueCleared, Classify(&QueueClearedError{}))
	require.Equal(t, KindLaunch, Classify(&LaunchError{Attempts: 3}))
	require.Equal(t, KindTransient, Classify(&TransientError{Reason: "late panel"}))
	require.Equal(t, KindPermanent, Classify(&PermanentError{Reason: "gone"}))
}
