package bridge

import "strings"

// PlaceholderOrigin stands in for the dev server origin until the listener
// is bound. It is set as the host's server origin, so asset URLs emitted
// during serving carry it, and RewritePlaceholder swaps in the real URL.
const PlaceholderOrigin = "http://__djbridge_placeholder__.invalid"

// RewritePlaceholder replaces every occurrence of the placeholder origin in
// code with devURL. It reports false, leaving code untouched, when devURL is
// not known yet.
func RewritePlaceholder(code, devURL string) (string, bool) {
	if devURL == "" {
		return code, false
	}
	if !strings.Contains(code, PlaceholderOrigin) {
		return code, false
	}
	return strings.ReplaceAll(code, PlaceholderOrigin, devURL), true
}
