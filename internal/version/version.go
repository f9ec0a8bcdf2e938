// Package version compares InfiniTime firmware version strings.
package version

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Parse parses a firmware version such as "1.14.0". Surrounding whitespace
// and NUL padding from the firmware revision characteristic are ignored.
func Parse(s string) (*goversion.Version, error) {
	v, err := goversion.NewVersion(strings.Trim(s, " \t\r\n\x00"))
	if err != nil {
		return nil, fmt.Errorf("version: parse %q: %w", s, err)
	}
	return v, nil
}

// AtLeast reports whether current >= since. ok is false when either string
// does not parse, in which case the comparison is meaningless.
func AtLeast(current, since string) (atLeast, ok bool) {
	cur, err := Parse(current)
	if err != nil {
		return false, false
	}
	threshold, err := Parse(since)
	if err != nil {
		return false, false
	}
	return cur.GreaterThanOrEqual(threshold), true
}
