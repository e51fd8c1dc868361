// Package keyservice pulls single-use keys from a key server. Every request
// authenticates with the key received last; the server answers with the next
// key or with an error text, and the service counts the keys it has seen
// delivered.
//
// Hostnames and ports are mapped as hostname:port/, so the defaults of
// localhost and 8000 give localhost:8000/ and keys are requested from
// localhost:8000/api/keys?authKey=<last key>.
//
// A Service is not safe for concurrent use. Callers that issue keys from
// several goroutines must serialize access or use one Service per goroutine.
package keyservice

import (
	"io"
	"time"

	"github.com/tasqc/keytrans-client/internal/logger"
	"github.com/tasqc/keytrans-client/pkg/transport"
)

const (
	DefaultHostname   = "localhost"
	DefaultPort       = "8000"
	DefaultUsername   = "user"
	DefaultPassword   = "password"
	DefaultKeyIDParam = "keyId"

	keysPath = "api/keys?authKey="
)

// Endpoint is the host and port keys are requested from.
type Endpoint struct {
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
}

func (e Endpoint) String() string {
	return e.Hostname + ":" + e.Port
}

// Service requests keys through a Transport it owns.
type Service struct {
	transport transport.Transport
	timeout   time.Duration

	hostname string
	port     string

	// prefix and keyFetchPrefix are derived from hostname and port and are
	// only written by regeneratePrefixes.
	prefix         string
	keyFetchPrefix string

	username   string
	password   string
	keyIDParam string

	keyCounter int
	closed     bool
	log        logger.Logger
}

// New creates a Service that owns t. A nil t is replaced by a resty binding.
func New(t transport.Transport, opts ...Option) *Service {
	s := &Service{
		transport:  t,
		hostname:   DefaultHostname,
		port:       DefaultPort,
		username:   DefaultUsername,
		password:   DefaultPassword,
		keyIDParam: DefaultKeyIDParam,
		timeout:    transport.DefaultTimeout,
		log:        logger.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.transport == nil {
		s.transport = transport.NewRestyTransport(s.timeout, logger.S)
	}
	s.regeneratePrefixes()
	// Keys are always requested over plain HTTP.
	if s.username != "" {
		s.log.WarnObj("basic auth credentials are sent over plain HTTP", "keyserver", s.Endpoint().String())
	}
	return s
}

// NewDefault creates a Service over the resty binding.
func NewDefault(opts ...Option) *Service {
	return New(nil, opts...)
}

// regeneratePrefixes rebuilds the base prefix and the key retrieval prefix.
func (s *Service) regeneratePrefixes() {
	s.prefix = s.hostname + ":" + s.port + "/"
	s.keyFetchPrefix = s.prefix + keysPath
}

// SetHostname sets the hostname keys are requested from.
func (s *Service) SetHostname(hostname string) {
	s.hostname = hostname
	s.regeneratePrefixes()
}

// Hostname returns the configured hostname.
func (s *Service) Hostname() string { return s.hostname }

// SetPort sets the port keys are requested from.
func (s *Service) SetPort(port string) {
	s.port = port
	s.regeneratePrefixes()
}

// Port returns the configured port.
func (s *Service) Port() string { return s.port }

// Endpoint returns the configured hostname and port.
func (s *Service) Endpoint() Endpoint {
	return Endpoint{Hostname: s.hostname, Port: s.port}
}

// Prefix returns hostname:port/.
func (s *Service) Prefix() string { return s.prefix }

// KeyFetchPrefix returns the URL that the last key is appended to.
func (s *Service) KeyFetchPrefix() string { return s.keyFetchPrefix }

// KeyID returns the number of keys delivered so far, which is also the id of
// the key returned last.
func (s *Service) KeyID() int { return s.keyCounter }

// GetKey requests the next key, authenticating with lastKey. The response
// text is returned unmodified whether it is a key or an error text.
func (s *Service) GetKey(lastKey string) string {
	return s.Fetch(lastKey).Text()
}

// GetKeyByID requests the previously issued key with id keyID. If the server
// has no such key its answer is returned as is and counts as a failure.
func (s *Service) GetKeyByID(lastKey, keyID string) string {
	return s.FetchByID(lastKey, keyID).Text()
}

// Fetch is GetKey with a classified result.
func (s *Service) Fetch(lastKey string) Result {
	return s.do(s.keyFetchPrefix + lastKey)
}

// FetchByID is GetKeyByID with a classified result.
func (s *Service) FetchByID(lastKey, keyID string) Result {
	return s.do(s.keyFetchPrefix + lastKey + "&" + s.keyIDParam + "=" + keyID)
}

func (s *Service) do(url string) Result {
	var text string
	if s.closed || s.transport == nil {
		text = transport.InitFailure
	} else {
		text = s.transport.Get(url, s.username, s.password)
	}

	res := newResult(text)
	if !res.OK() {
		s.log.WarnObj("key request failed", "key_request", map[string]any{
			"endpoint": s.Endpoint().String(),
			"kind":     res.Failure.Kind.String(),
			"message":  res.Failure.Message,
		})
		return res
	}

	s.keyCounter++
	s.log.DebugObj("key delivered", "key_request", map[string]any{
		"endpoint": s.Endpoint().String(),
		"key_id":   s.keyCounter,
	})
	return res
}

// Close releases the transport. Later requests fail with the transport
// initialization text.
func (s *Service) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
