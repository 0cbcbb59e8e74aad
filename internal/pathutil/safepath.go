// Package pathutil checks paths taken from CMS content before they are joined
// onto a base URL or used as an object key.
package pathutil

import (
	"net/url"
	"strings"
)

// HasDotSegments reports whether any segment of p is "." or "..". Segments are
// percent-decoded first, so "%2e%2E" counts as "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.Contains(seg, "%") {
			if dec, err := url.PathUnescape(seg); err == nil {
				seg = dec
			}
		}
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
