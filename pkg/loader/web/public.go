package web

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// NewPublicClient returns an HTTP client that only connects to public
// addresses. Loopback, private, link-local and unspecified addresses are
// refused after name resolution, so redirects and DNS names pointing into
// the local network fail with common.ErrSourceForbidden. Proxies from the
// environment are ignored.
func NewPublicClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = time.Minute
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   denyNonPublic,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{Timeout: timeout, Transport: transport}
}

func denyNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrSourceForbidden, address)
	}
	if !IsPublicIP(net.ParseIP(host)) {
		return fmt.Errorf("%w: %s is not a public address", common.ErrSourceForbidden, host)
	}
	return nil
}

// IsPublicIP reports whether ip is a globally routable unicast address.
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}
