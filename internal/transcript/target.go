package transcript

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Target is a normalized extraction target. VideoID is the canonical cache
// key; WatchURL is the page the browser navigates to.
type Target struct {
	VideoID  string
	WatchURL string
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseTarget normalizes the supported watch-page URL shapes (watch?v=,
// youtu.be/, shorts/, embed/, or a bare 11-character id) into a Target.
// A URL that cannot yield a video id is a PermanentError: upstream validation
// only checks URL syntax, not that the path actually addresses a video.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, &PermanentError{Reason: "empty target"}
	}
	if videoIDPattern.MatchString(raw) {
		return fromID(raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, &PermanentError{Reason: "unparsable target url", Err: err}
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/embed/"), "/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/live/"), "/")
		}
	default:
		return Target{}, &PermanentError{Reason: fmt.Sprintf("unsupported host %q", host)}
	}

	if !videoIDPattern.MatchString(id) {
		return Target{}, &PermanentError{Reason: fmt.Sprintf("no video id in %q", raw)}
	}
	return fromID(id), nil
}

func fromID(id string) Target {
	return Target{
		VideoID:  id,
		WatchURL: "https://www.youtube.com/watch?v=" + id,
	}
}
