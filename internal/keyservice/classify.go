package keyservice

import (
	"strings"

	"github.com/tasqc/keytrans-client/pkg/transport"
)

// Kind identifies how a key request ended.
type Kind int

const (
	// KindNone marks a delivered key.
	KindNone Kind = iota
	KindTransportInit
	KindDNS
	KindConnection
	KindHTTPStatus
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransportInit:
		return "transport_init"
	case KindDNS:
		return "dns"
	case KindConnection:
		return "connection"
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseKind maps a name produced by Kind.String back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k := KindNone; k <= KindTimeout; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return KindNone, false
}

// Classify decides from the response text alone whether a key was delivered.
// The init, HTTP status, DNS and refused connection shapes are the failures
// the key server contract defines. The timeout shape is an addition: the
// binding renders its own timeout text, and without this rule an expired
// request would count as a delivered key. Any other text is a key, so a key
// that happens to contain the HTTP status marker is reported as a failure.
// An empty reply (transport.EmptyReply) matches no shape and counts as a key.
func Classify(text string) Kind {
	switch {
	case text == transport.InitFailure:
		return KindTransportInit
	case strings.Contains(text, transport.HTTPStatusMarker):
		return KindHTTPStatus
	case strings.HasPrefix(text, transport.ResolvePrefix):
		return KindDNS
	case strings.HasPrefix(text, transport.ConnectPrefix) && strings.HasSuffix(text, transport.ConnectRefusedSuffix):
		return KindConnection
	case strings.HasPrefix(text, transport.TimeoutPrefix):
		return KindTimeout
	default:
		return KindNone
	}
}
