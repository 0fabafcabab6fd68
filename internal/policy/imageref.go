package policy

import "regexp"

var (
	dataURLPattern  = regexp.MustCompile(`data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=]+`)
	imageURLPattern = regexp.MustCompile(`https?://[^\s"']+\.(?:png|jpe?g|gif|webp|bmp|svg)(?:\?[^\s"']*)?`)
)

// ContainsImageRef reports whether the text carries image bytes or a pointer
// to them. Contact records and photographic content must never be joinable in
// durable storage, so every field headed for the analytics store passes
// through this check first.
func ContainsImageRef(input string) bool {
	return dataURLPattern.MatchString(input) || imageURLPattern.MatchString(input)
}

// ScrubImageRefs masks any image reference smuggled into a free-text field.
func ScrubImageRefs(input string) (scrubbed string, changed bool) {
	out := input

	// Scrub embedded bytes before plain URLs so a data URL is never half
	// matched by the URL pattern.
	next := dataURLPattern.ReplaceAllString(out, "[REMOVED_IMAGE_DATA]")
	changed = changed || next != out
	out = next

	next = imageURLPattern.ReplaceAllString(out, "[REMOVED_IMAGE_URL]")
	changed = changed || next != out
	out = next

	return out, changed
}
