package transport

import (
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request issued by a RestyTransport built with a
// non-positive timeout.
const DefaultTimeout = 15 * time.Second

// Compile-time check that RestyTransport implements Transport.
var _ Transport = (*RestyTransport)(nil)

// RestyTransport adapts resty.Client to the Transport interface.
type RestyTransport struct {
	client    *resty.Client
	timeout   time.Duration
	closeOnce sync.Once
}

// NewRestyTransport creates a RestyTransport with the specified timeout.
// resty's own diagnostics go to log; a nil log discards them.
func NewRestyTransport(timeout time.Duration, log *zap.SugaredLogger) *RestyTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RestyTransport{client: newRestyBaseClient(timeout, log), timeout: timeout}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration, log *zap.SugaredLogger) *resty.Client {
	return newRestyBaseClient(timeout, log)
}

// newRestyBaseClient creates a resty.Client that logs through zap instead of
// resty's stderr logger. The per-request plain HTTP basic auth warning is off;
// keyservice reports it once per Service.
func newRestyBaseClient(timeout time.Duration, log *zap.SugaredLogger) *resty.Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetLogger(log)
	c.SetDisableWarn(true)
	return c
}

// Get performs an HTTP GET and returns the body or an error text.
func (r *RestyTransport) Get(url, username, password string) string {
	req, t, ok := r.request(url, username, password)
	if !ok {
		return InitFailure
	}
	resp, err := req.Get(t.raw)
	if err != nil {
		return describeError(err, t, r.timeout)
	}
	if resp.IsError() {
		return HTTPStatusFailure(resp.StatusCode())
	}
	return string(resp.Body())
}

// Post performs an HTTP POST of value. It returns "" on success.
func (r *RestyTransport) Post(url, value, username, password string) string {
	req, t, ok := r.request(url, username, password)
	if !ok {
		return InitFailure
	}
	resp, err := req.
		SetHeader("Content-Type", "text/plain").
		SetBody(value).
		Post(t.raw)
	if err != nil {
		return describeError(err, t, r.timeout)
	}
	if resp.IsError() {
		return HTTPStatusFailure(resp.StatusCode())
	}
	return ""
}

// Close releases idle connections held by the underlying client.
func (r *RestyTransport) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.client.GetClient().CloseIdleConnections()
	})
	return nil
}

// request builds a resty request for url, applying basic auth when a username is set.
func (r *RestyTransport) request(url, username, password string) (*resty.Request, target, bool) {
	if r == nil || r.client == nil {
		return nil, target{}, false
	}
	t, ok := parseTarget(url)
	if !ok {
		return nil, target{}, false
	}

	req := r.client.R()
	if username != "" {
		req.SetBasicAuth(username, password)
	}
	return req, t, true
}
