package keyservice

import (
	"time"

	"github.com/tasqc/keytrans-client/internal/logger"
)

// Option customizes a Service at construction.
type Option func(*Service)

// WithEndpoint sets the initial hostname and port. Empty values keep the defaults.
func WithEndpoint(hostname, port string) Option {
	return func(s *Service) {
		if hostname != "" {
			s.hostname = hostname
		}
		if port != "" {
			s.port = port
		}
	}
}

// WithCredentials overrides the credential pair sent with every key request.
// Empty values are passed through and ignored by the transport.
func WithCredentials(username, password string) Option {
	return func(s *Service) {
		s.username = username
		s.password = password
	}
}

// WithKeyIDParam sets the query parameter used to scope a request to a
// previously issued key.
func WithKeyIDParam(param string) Option {
	return func(s *Service) {
		if param != "" {
			s.keyIDParam = param
		}
	}
}

// WithTransportTimeout sets the request timeout of the binding NewDefault creates.
func WithTransportTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithLogger sets the logger used for request bookkeeping.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.log = logger.Ensure(log)
	}
}
