package source

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
)

// cachedResolver dials through a refreshed DNS cache so a five minute poll
// does not resolve the API host on every request.
type cachedResolver struct {
	resolver *dnscache.Resolver
	dialer   *net.Dialer
	stop     chan struct{}
	once     sync.Once
}

func newCachedResolver(refresh time.Duration) *cachedResolver {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	r := &cachedResolver{
		resolver: &dnscache.Resolver{},
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		stop: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.resolver.Refresh(true)
				log.Debug().Dur("ttl", refresh).Msg("DNS cache refreshed")
			case <-r.stop:
				return
			}
		}
	}()
	return r
}

// DialContext resolves address through the cache and tries each IP in turn.
func (r *cachedResolver) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	ips, err := r.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *cachedResolver) Close() {
	r.once.Do(func() { close(r.stop) })
}
