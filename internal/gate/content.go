package gate

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	videoID      = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	unreadPrefix = regexp.MustCompile(`^\(\d+\)\s+`)
)

// ContentID returns the video id when u points at a single content item:
// youtube.com/watch?v=ID, /shorts/ID, /embed/ID or youtu.be/ID. Channel,
// search and home pages are not content items.
func ContentID(u *url.URL) (string, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	}
	id = strings.TrimSuffix(id, "/")
	if !videoID.MatchString(id) {
		return "", false
	}
	return id, true
}

// CleanTitle strips the unread counter and site suffix browsers show in
// document titles.
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = unreadPrefix.ReplaceAllString(title, "")
	title = strings.TrimSuffix(title, "- YouTube")
	return strings.TrimSpace(title)
}
