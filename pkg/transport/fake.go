package transport

// Compile-time check that Fake implements Transport.
var _ Transport = (*Fake)(nil)

// Request records a single call made against a Fake.
type Request struct {
	Method   string
	URL      string
	Value    string
	Username string
	Password string
}

// Fake is an in-memory Transport for tests.
// It can be configured to return a fixed body or to answer per URL.
type Fake struct {
	// Response is returned by Get when Responder is nil.
	Response string

	// Responder, when set, computes the Get response for a URL.
	Responder func(url string) string

	// PostResponse is returned by Post.
	PostResponse string

	// Requests tracks every call in order.
	Requests []Request

	// CloseCalls tracks how many times Close was called.
	CloseCalls int
}

// NewFake creates a Fake that answers every Get with response.
func NewFake(response string) *Fake {
	return &Fake{Response: response}
}

// Get records the call and returns the configured response.
func (f *Fake) Get(url, username, password string) string {
	f.Requests = append(f.Requests, Request{
		Method:   "GET",
		URL:      url,
		Username: username,
		Password: password,
	})
	if f.Responder != nil {
		return f.Responder(url)
	}
	return f.Response
}

// Post records the call and returns PostResponse.
func (f *Fake) Post(url, value, username, password string) string {
	f.Requests = append(f.Requests, Request{
		Method:   "POST",
		URL:      url,
		Value:    value,
		Username: username,
		Password: password,
	})
	return f.PostResponse
}

// Close counts calls so owners can be checked for releasing exactly once.
func (f *Fake) Close() error {
	f.CloseCalls++
	return nil
}

// LastRequest returns the most recent call, if any.
func (f *Fake) LastRequest() (Request, bool) {
	if len(f.Requests) == 0 {
		return Request{}, false
	}
	return f.Requests[len(f.Requests)-1], true
}
