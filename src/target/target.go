package target

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Target represents a parsed provider URI.
// Examples: ec2, ec2:eu-west-1, incus, incus:/var/lib/incus/unix.socket
type Target struct {
	// Raw is the original input string.
	Raw string
	// Scheme is the provider (e.g., "ec2").
	Scheme string
	// Value is the scheme-specific value: the region for ec2, the socket path for incus.
	Value string
}

// SupportedSchemes lists the schemes the parser accepts.
var SupportedSchemes = map[string]struct{}{
	"ec2":   {},
	"incus": {},
}

// Parse parses a provider URI like "ec2:us-east-1" into a Target structure.
// The value part is optional.
func Parse(raw string) (Target, error) {
	t := Target{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return t, fmt.Errorf("provider must not be empty; expected 'ec2[:region]' or 'incus[:socket]'")
	}
	scheme, val, _ := strings.Cut(s, ":")
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	val = strings.TrimSpace(val)
	if scheme == "" {
		return t, fmt.Errorf("invalid provider %q; expected '<scheme>[:<value>]'", raw)
	}
	if _, ok := SupportedSchemes[scheme]; !ok {
		return t, fmt.Errorf("unsupported provider %q", scheme)
	}
	t.Scheme = scheme

	switch scheme {
	case "ec2":
		if strings.ContainsAny(val, "/ ") {
			return t, fmt.Errorf("invalid ec2 region %q", val)
		}
		t.Value = val
	case "incus":
		if val != "" {
			clean := filepath.Clean(val)
			if !filepath.IsAbs(clean) {
				return t, fmt.Errorf("incus socket must be an absolute path: %q", val)
			}
			val = clean
		}
		t.Value = val
	}
	return t, nil
}

// IsSupported returns true if the scheme is recognized.
func IsSupported(scheme string) bool {
	_, ok := SupportedSchemes[strings.ToLower(scheme)]
	return ok
}

// String returns a canonical string form of the target.
func (t Target) String() string {
	if t.Scheme == "" {
		return t.Raw
	}
	if t.Value == "" {
		return t.Scheme
	}
	return t.Scheme + ":" + t.Value
}
