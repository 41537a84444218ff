package relayconfig

import (
	"fmt"
	"net"
	"strings"

	"github.com/multiformats/go-multiaddr"
)

// ResolveListenAddr accepts host:port or a multiaddr such as
// /ip4/0.0.0.0/tcp/8080 and returns a host:port for net/http.
func ResolveListenAddr(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("health listen address is empty")
	}
	if !strings.HasPrefix(raw, "/") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return "", fmt.Errorf("health listen address %q: %w", raw, err)
		}
		return raw, nil
	}

	ma, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return "", fmt.Errorf("health listen multiaddr %q: %w", raw, err)
	}
	port, err := ma.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return "", fmt.Errorf("health listen multiaddr %q has no tcp port", raw)
	}
	for _, code := range []int{multiaddr.P_IP4, multiaddr.P_IP6, multiaddr.P_DNS, multiaddr.P_DNS4, multiaddr.P_DNS6} {
		if host, err := ma.ValueForProtocol(code); err == nil {
			return net.JoinHostPort(host, port), nil
		}
	}
	return net.JoinHostPort("", port), nil
}
