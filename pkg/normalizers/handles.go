package normalizers

import (
	"net/url"
	"strings"
)

const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformLinkedIn  = "linkedin"
)

// reservedPaths are profile-less URL segments that never name an account.
var reservedPaths = map[string]bool{
	"":            true,
	"pages":       true,
	"profile.php": true,
	"in":          true,
	"company":     true,
	"people":      true,
	"p":           true,
	"share":       true,
}

// NormalizeHandle returns "platform:handle" for a social profile URL or a bare
// @handle, lower-cased. It returns "" when no handle can be extracted.
func NormalizeHandle(platform, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "@") {
		return qualify(platform, strings.TrimPrefix(raw, "@"))
	}

	if !strings.Contains(raw, "://") {
		if !strings.Contains(raw, "/") && !strings.Contains(raw, ".") {
			return qualify(platform, raw)
		}
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(segments); i++ {
		segment := strings.ToLower(segments[i])
		if segment == "profile.php" {
			return qualify(platform, u.Query().Get("id"))
		}
		if reservedPaths[segment] {
			continue
		}
		return qualify(platform, segment)
	}
	return ""
}

// Handles returns the non-empty platform handles of the given social URLs.
func Handles(facebook, instagram, linkedin string) []string {
	var handles []string
	for _, h := range []string{
		NormalizeHandle(PlatformFacebook, facebook),
		NormalizeHandle(PlatformInstagram, instagram),
		NormalizeHandle(PlatformLinkedIn, linkedin),
	} {
		if h != "" {
			handles = append(handles, h)
		}
	}
	return handles
}

func qualify(platform, handle string) string {
	handle = strings.ToLower(strings.Trim(strings.TrimSpace(handle), "@/"))
	if handle == "" {
		return ""
	}
	return platform + ":" + handle
}
