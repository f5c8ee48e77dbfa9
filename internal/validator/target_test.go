package validator

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	v := New(DefaultMaxURLLength)

	tests := []struct {
		raw    string
		scheme string
		host   string
	}{
		{"http://example.com", "http", "example.com"},
		{"https://example.com/path?q=1#frag", "https", "example.com"},
		{"HTTPS://Example.COM:8443/a", "https", "Example.COM"},
		{"http://93.184.216.34/", "http", "93.184.216.34"},
		{"http://[2606:2800:220:1:248:1893:25c8:1946]/", "http", "2606:2800:220:1:248:1893:25c8:1946"},
		{"http://172.32.0.1/", "http", "172.32.0.1"},
		{"http://my-site.co.uk/", "http", "my-site.co.uk"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			target, err := v.Validate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, target.Scheme)
			assert.Equal(t, tt.scheme, target.URL.Scheme)
			assert.Equal(t, tt.host, target.URL.Hostname())
		})
	}
}

func TestValidate_InvalidURL(t *testing.T) {
	v := New(DefaultMaxURLLength)

	tests := []string{
		"",
		"example.com",
		"//example.com/x",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"http:example.com",
		"http://",
		"http://exa mple.com",
		"http://bad_host!.com/",
		"http://-leading.com/",
		"http://127.1/",
		"http://2130706433/",
		"http://0x7f.0x0.0x0.0x1/",
		"http://%zz/",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := v.Validate(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidURL)
			assert.False(t, errors.Is(err, ErrBlockedTarget))
		})
	}
}

func TestValidate_TooLongRegardlessOfContent(t *testing.T) {
	v := New(DefaultMaxURLLength)

	inputs := []string{
		"http://example.com/" + strings.Repeat("a", 2048),
		"http://127.0.0.1/" + strings.Repeat("a", 2048),
		strings.Repeat("x", 2049),
	}
	for _, raw := range inputs {
		_, err := v.Validate(raw)
		var invalid *InvalidURLError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, MsgTooLong, invalid.Reason)
	}

	exact := "http://example.com/" + strings.Repeat("a", 2048-len("http://example.com/"))
	_, err := v.Validate(exact)
	assert.NoError(t, err)
}

func TestValidate_BlockedTarget(t *testing.T) {
	v := New(DefaultMaxURLLength)

	tests := []string{
		"http://127.0.0.1/x",
		"http://127.8.9.10:8080/",
		"http://localhost/",
		"http://LOCALHOST:3000/admin",
		"http://localhost./",
		"http://api.localhost/",
		"http://0.0.0.0/",
		"http://169.254.169.254/latest/meta-data",
		"http://10.0.0.1/",
		"http://172.16.0.1/",
		"http://172.31.255.255/",
		"http://192.168.1.5/",
		"https://192.168.0.1/",
		"http://100.64.0.1/",
		"http://[::1]/",
		"http://[::]/",
		"http://[::ffff:127.0.0.1]/",
		"http://[fe80::1]/",
		"http://[fd00::1]/",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := v.Validate(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBlockedTarget)
		})
	}
}

func TestCheckAddr(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"8.8.8.8", false},
		{"172.15.255.255", false},
		{"172.16.0.0", true},
		{"169.254.0.1", true},
		{"::ffff:10.1.2.3", true},
		{"2001:4860:4860::8888", false},
		{"ff02::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := CheckAddr(netip.MustParseAddr(tt.addr))
			assert.Equal(t, tt.blocked, err != nil, "err = %v", err)
		})
	}
}

func TestNew_DefaultLength(t *testing.T) {
	assert.Equal(t, DefaultMaxURLLength, New(0).maxLength)
	assert.Equal(t, 100, New(100).maxLength)
}
