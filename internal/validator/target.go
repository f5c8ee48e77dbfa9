// Package validator checks user supplied URLs before any outbound request is made.
// It rejects malformed input and hosts that point at loopback, private, link-local or
// otherwise internal address space (SSRF guard).
package validator

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/IliaW/url-scrape-archiver/internal/model"
)

const DefaultMaxURLLength = 2048

const (
	MsgTooLong       = "URL too long"
	MsgInvalidFormat = "Invalid URL format"
)

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrBlockedTarget = errors.New("blocked target")
)

// InvalidURLError carries the human readable reason a URL was rejected.
type InvalidURLError struct {
	Reason string
}

func (e *InvalidURLError) Error() string {
	return "invalid url: " + e.Reason
}

func (e *InvalidURLError) Is(target error) bool {
	return target == ErrInvalidURL
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),      // "this" network, includes unspecified
	netip.MustParsePrefix("10.0.0.0/8"),     // private
	netip.MustParsePrefix("100.64.0.0/10"),  // carrier-grade NAT
	netip.MustParsePrefix("127.0.0.0/8"),    // loopback
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("172.16.0.0/12"),  // private
	netip.MustParsePrefix("192.168.0.0/16"), // private
	netip.MustParsePrefix("::/128"),         // unspecified
	netip.MustParsePrefix("::1/128"),        // loopback
	netip.MustParsePrefix("fc00::/7"),       // unique local
	netip.MustParsePrefix("fe80::/10"),      // link-local
}

type TargetValidator struct {
	maxLength int
}

func New(maxLength int) *TargetValidator {
	if maxLength <= 0 {
		maxLength = DefaultMaxURLLength
	}
	return &TargetValidator{maxLength: maxLength}
}

// Validate parses rawURL and applies the syntax and blocklist checks. It has no side effects.
func (v *TargetValidator) Validate(rawURL string) (*model.ValidatedTarget, error) {
	if utf8.RuneCountInString(rawURL) > v.maxLength {
		return nil, &InvalidURLError{Reason: MsgTooLong}
	}
	if rawURL == "" || strings.ContainsAny(rawURL, " \t\r\n") {
		return nil, &InvalidURLError{Reason: MsgInvalidFormat}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &InvalidURLError{Reason: MsgInvalidFormat}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &InvalidURLError{Reason: MsgInvalidFormat}
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, &InvalidURLError{Reason: MsgInvalidFormat}
	}

	host := u.Hostname()
	if _, err := netip.ParseAddr(host); err != nil && !validHostname(host) {
		return nil, &InvalidURLError{Reason: MsgInvalidFormat}
	}
	if err := CheckHost(host); err != nil {
		return nil, err
	}
	u.Scheme = scheme

	return &model.ValidatedTarget{URL: u, Scheme: scheme}, nil
}

// CheckHost reports ErrBlockedTarget when host, as written, names a blocked address.
func CheckHost(host string) error {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}
	if addr, err := netip.ParseAddr(h); err == nil {
		return CheckAddr(addr)
	}

	return nil
}

// CheckAddr reports ErrBlockedTarget when addr falls in a blocked range. IPv4-mapped
// IPv6 addresses are checked as IPv4.
func CheckAddr(addr netip.Addr) error {
	addr = addr.Unmap().WithZone("")
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return fmt.Errorf("%w: %s is in %s", ErrBlockedTarget, addr, p)
		}
	}
	if addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, addr)
	}

	return nil
}

// validHostname accepts DNS names made of letters, digits and hyphens. A purely numeric
// last label is refused: those are shorthand IPv4 forms (127.1, 2130706433) some resolvers
// would quietly turn into addresses.
func validHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	labels := strings.Split(host, ".")
	for _, l := range labels {
		if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for _, r := range l {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return false
			}
		}
	}
	last := strings.ToLower(labels[len(labels)-1])
	if strings.HasPrefix(last, "0x") || strings.Trim(last, "0123456789") == "" {
		return false
	}

	return true
}
