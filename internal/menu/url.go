package menu

import "strings"

// AbsoluteURL prefixes href with baseURL unless it is already http(s).
func AbsoluteURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	base := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

// ResolveImage turns an item image src into something the bot can display.
// Vector images are rejected because chat clients cannot render them inline.
func ResolveImage(baseURL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" || src == NoPhoto {
		return NoPhoto
	}
	if strings.HasSuffix(strings.ToLower(src), ".svg") {
		return NoPhoto
	}
	return AbsoluteURL(baseURL, src)
}
