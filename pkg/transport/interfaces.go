// Package transport performs the HTTP exchanges used to pull keys from a key
// server. Bindings never surface network failures as Go errors: every failure
// is rendered as descriptive text in the returned string, using the shapes
// declared in diagnostics.go, so callers can classify a response from the
// text alone.
package transport

// Transport abstracts HTTP GET/POST so callers can inject a test double or a
// different binding.
type Transport interface {
	// Get returns the body found at url or an error text. username and
	// password are ignored when empty.
	Get(url, username, password string) string
	// Post transmits value to url. It returns an empty string on success and
	// an error text otherwise.
	Post(url, value, username, password string) string
}
