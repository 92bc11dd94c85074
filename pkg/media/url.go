package media

import (
	"regexp"
	"strings"
)

var driveIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
}

// PreferredVideoURL returns the first non-empty candidate, in priority order.
func PreferredVideoURL(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// IsDriveURL reports whether url points at a Google Drive file.
func IsDriveURL(url string) bool {
	return strings.Contains(url, "drive.google.com") || strings.Contains(url, "/d/")
}

// DriveFileID extracts the file id from a share or open link.
func DriveFileID(url string) (string, bool) {
	for _, re := range driveIDPatterns {
		if m := re.FindStringSubmatch(url); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// DriveEmbedURL rewrites a Drive link to its iframe preview URL. Links without
// a recognisable file id are returned unchanged.
func DriveEmbedURL(url string) string {
	id, ok := DriveFileID(url)
	if !ok {
		return url
	}
	return "https://drive.google.com/file/d/" + id + "/preview"
}

// EmbedURL is the URL a player should load: Drive links become previews,
// everything else is played directly.
func EmbedURL(url string) string {
	if url == "" || !IsDriveURL(url) {
		return url
	}
	return DriveEmbedURL(url)
}
