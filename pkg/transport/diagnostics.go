package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Error text shapes produced by conforming bindings.
const (
	// InitFailure is returned when the binding cannot build or issue a request.
	InitFailure = "CURL could not be initialized."
	// HTTPStatusMarker is contained in every HTTP error status text.
	HTTPStatusMarker = "returned HTTP code"
	// ResolvePrefix starts a DNS resolution failure text.
	ResolvePrefix = "Could not resolve host: "
	// ConnectPrefix and ConnectRefusedSuffix frame a refused connection text.
	ConnectPrefix        = "Failed to connect to "
	ConnectRefusedSuffix = ": Connection refused"
	// TimeoutPrefix starts a binding timeout text.
	TimeoutPrefix = "Operation timed out after "
	// EmptyReply is returned when the server closes the connection without
	// answering. It matches no failure shape.
	EmptyReply = "Empty reply from server"
)

// ResolveFailure renders a DNS failure for host.
func ResolveFailure(host string) string {
	return ResolvePrefix + host
}

// ConnectRefused renders a refused connection to host:port.
func ConnectRefused(host, port string) string {
	return fmt.Sprintf("%s%s port %s%s", ConnectPrefix, host, port, ConnectRefusedSuffix)
}

// HTTPStatusFailure renders an HTTP error status returned by the server.
func HTTPStatusFailure(code int) string {
	return fmt.Sprintf("The requested URL %s %d", HTTPStatusMarker, code)
}

// TimeoutFailure renders a request that exceeded the binding timeout.
func TimeoutFailure(after time.Duration) string {
	return fmt.Sprintf("%s%d milliseconds", TimeoutPrefix, after.Milliseconds())
}

// target is the parsed request URL a diagnostic refers to.
type target struct {
	raw  string
	host string
	port string
}

// parseTarget normalizes rawURL the way curl does: a missing scheme means http.
func parseTarget(rawURL string) (target, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return target{}, false
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return target{}, false
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return target{raw: raw, host: u.Hostname(), port: port}, true
}

// describeError converts a request error into its text shape.
func describeError(err error, t target, timeout time.Duration) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ResolveFailure(t.host)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnectRefused(t.host, t.port)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TimeoutFailure(timeout)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return EmptyReply
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
