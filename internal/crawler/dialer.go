package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/IliaW/url-scrape-archiver/internal/validator"
)

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SafeDialContext resolves the host itself, refuses the connection if any resolved address
// is blocked and dials the checked address directly, so a second lookup cannot swap it.
func SafeDialContext(dialer *net.Dialer, resolver *net.Resolver) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}

		ips, err := resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no addresses for %s", host)
		}
		for _, ip := range ips {
			if err := validator.CheckAddr(ip); err != nil {
				return nil, fmt.Errorf("%s resolves to blocked address: %w", host, err)
			}
		}

		var errs []error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.Unmap().String(), port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
		}

		return nil, errors.Join(errs...)
	}
}
