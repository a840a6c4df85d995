package webhook

import "regexp"

// Some webhook providers prepend the deployment base URL to Google Drive
// links. Only that shape is rewritten; everything else is left as is.
var (
	// https://app.example.com/[label](https://drive.google.com/...)
	prefixedMarkdownLink = regexp.MustCompile(`https?://[^\s\[\]()]+?/\[([^\]]+)\]\((https://drive\.google\.com/[^\s)]+)\)`)

	// https://app.example.com/https://drive.google.com/...
	prefixedStorageURL = regexp.MustCompile(`https?://[^\s\[\]()]+?/(https://drive\.google\.com/[^\s)\]]+)`)
)

// RepairLinks collapses base-URL-prefixed Drive links into valid links.
func RepairLinks(s string) string {
	s = prefixedMarkdownLink.ReplaceAllString(s, "[$1]($2)")
	s = prefixedStorageURL.ReplaceAllString(s, "$1")
	return s
}
