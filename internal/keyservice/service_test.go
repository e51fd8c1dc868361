package keyservice

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tasqc/keytrans-client/pkg/transport"
)

const goodKey = "c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00c0ffee00"

func TestNewServiceDefaults(t *testing.T) {
	svc := New(transport.NewFake(goodKey))

	if svc.Hostname() != "localhost" || svc.Port() != "8000" {
		t.Fatalf("unexpected endpoint %s", svc.Endpoint())
	}
	if svc.Prefix() != "localhost:8000/" {
		t.Fatalf("prefix = %q", svc.Prefix())
	}
	if svc.KeyFetchPrefix() != "localhost:8000/api/keys?authKey=" {
		t.Fatalf("key fetch prefix = %q", svc.KeyFetchPrefix())
	}
	if svc.KeyID() != 0 {
		t.Fatalf("expected fresh counter to be 0, got %d", svc.KeyID())
	}
}

func TestSetHostnameAndPortRegeneratePrefixes(t *testing.T) {
	cases := []struct{ host, port string }{
		{"keys.example.org", "443"},
		{"10.0.0.7", "8080"},
		{"", ""},
		{"not a host", "not a port"},
	}

	for _, tc := range cases {
		fake := transport.NewFake(goodKey)
		svc := New(fake)
		svc.SetHostname(tc.host)
		svc.SetPort(tc.port)

		if svc.Hostname() != tc.host || svc.Port() != tc.port {
			t.Fatalf("got %q:%q, want %q:%q", svc.Hostname(), svc.Port(), tc.host, tc.port)
		}

		svc.GetKey("last")
		req, ok := fake.LastRequest()
		if !ok {
			t.Fatalf("transport was not called")
		}
		wantPrefix := tc.host + ":" + tc.port + "/api/keys?authKey="
		if !strings.HasPrefix(req.URL, wantPrefix) {
			t.Fatalf("url %q does not start with %q", req.URL, wantPrefix)
		}
		if req.URL != wantPrefix+"last" {
			t.Fatalf("url = %q", req.URL)
		}
	}
}

func TestGetKeySendsDefaultCredentials(t *testing.T) {
	fake := transport.NewFake(goodKey)
	svc := New(fake)

	if got := svc.GetKey("1"); got != goodKey {
		t.Fatalf("GetKey = %q", got)
	}
	req, _ := fake.LastRequest()
	if req.Method != "GET" || req.Username != "user" || req.Password != "password" {
		t.Fatalf("unexpected request %#v", req)
	}
}

func TestWithCredentialsOverridesPair(t *testing.T) {
	fake := transport.NewFake(goodKey)
	svc := New(fake, WithCredentials("alice", ""), WithEndpoint("keyhost", ""))

	svc.GetKey("1")
	req, _ := fake.LastRequest()
	if req.Username != "alice" || req.Password != "" {
		t.Fatalf("unexpected credentials %#v", req)
	}
	if req.URL != "keyhost:8000/api/keys?authKey=1" {
		t.Fatalf("url = %q", req.URL)
	}
}

func TestKeyIDIncrementsOnEverySuccess(t *testing.T) {
	svc := New(transport.NewFake(goodKey))

	for i, last := range []string{"1", "2", "3"} {
		if got := svc.GetKey(last); got != goodKey {
			t.Fatalf("GetKey = %q", got)
		}
		if svc.KeyID() != i+1 {
			t.Fatalf("after %d successes KeyID = %d", i+1, svc.KeyID())
		}
	}
}

func TestKeyIDUnchangedOnFailure(t *testing.T) {
	svc := New(transport.NewFake("The requested URL returned HTTP code 404"))

	for i := 0; i < 5; i++ {
		got := svc.GetKey("4")
		if got != "The requested URL returned HTTP code 404" {
			t.Fatalf("GetKey = %q", got)
		}
		if svc.KeyID() != 0 {
			t.Fatalf("KeyID = %d after failure", svc.KeyID())
		}
	}
}

func TestGetKeyReturnsFailureTextVerbatim(t *testing.T) {
	literals := []string{
		"CURL could not be initialized.",
		"returned HTTP code 500",
		"Could not resolve host: lillywood",
		"Failed to connect to localhost port 1540: Connection refused",
		"Operation timed out after 10 milliseconds",
	}
	for _, lit := range literals {
		svc := New(transport.NewFake(lit))
		if got := svc.GetKey("k"); got != lit {
			t.Fatalf("GetKey = %q, want %q", got, lit)
		}
		if svc.KeyID() != 0 {
			t.Fatalf("counter advanced on %q", lit)
		}
		res := svc.Fetch("k")
		if res.OK() || res.Failure.Message != lit {
			t.Fatalf("Fetch = %#v", res)
		}
	}
}

func TestGetKeyByIDScopesRequest(t *testing.T) {
	fake := transport.NewFake(goodKey)
	svc := New(fake)

	if got := svc.GetKeyByID("last", "12"); got != goodKey {
		t.Fatalf("GetKeyByID = %q", got)
	}
	req, _ := fake.LastRequest()
	if req.URL != "localhost:8000/api/keys?authKey=last&keyId=12" {
		t.Fatalf("url = %q", req.URL)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("KeyID = %d", svc.KeyID())
	}

	svc = New(fake, WithKeyIDParam("id"))
	svc.GetKeyByID("last", "3")
	req, _ = fake.LastRequest()
	if req.URL != "localhost:8000/api/keys?authKey=last&id=3" {
		t.Fatalf("url = %q", req.URL)
	}
}

func TestGetKeyByIDUnknownIDIsFailure(t *testing.T) {
	fake := &transport.Fake{Responder: func(url string) string {
		if strings.HasSuffix(url, "&keyId=99") {
			return "The requested URL returned HTTP code 404"
		}
		return goodKey
	}}
	svc := New(fake)

	svc.GetKey("1")
	res := svc.FetchByID("1", "99")
	if res.OK() || res.Failure.Kind != KindHTTPStatus {
		t.Fatalf("expected http status failure, got %#v", res)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("KeyID = %d", svc.KeyID())
	}
}

func TestFailedEndpointThenRestoreResumesCounting(t *testing.T) {
	fake := &transport.Fake{Responder: func(url string) string {
		switch {
		case strings.HasPrefix(url, "lillywood:"):
			return "Could not resolve host: lillywood"
		case strings.HasPrefix(url, "localhost:1540/"):
			return "Failed to connect to localhost port 1540: Connection refused"
		default:
			return goodKey
		}
	}}
	svc := New(fake)

	key := svc.GetKey("1")
	if svc.KeyID() != 1 {
		t.Fatalf("KeyID = %d", svc.KeyID())
	}
	hostname, port := svc.Hostname(), svc.Port()

	svc.SetHostname("lillywood")
	if key = svc.GetKey(key); key != "Could not resolve host: lillywood" {
		t.Fatalf("GetKey = %q", key)
	}

	svc.SetHostname(hostname)
	svc.SetPort("1540")
	if key = svc.GetKey(key); key != "Failed to connect to localhost port 1540: Connection refused" {
		t.Fatalf("GetKey = %q", key)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("failures changed KeyID to %d", svc.KeyID())
	}

	svc.SetPort(port)
	if key = svc.GetKey(key); key != goodKey {
		t.Fatalf("GetKey = %q", key)
	}
	if svc.KeyID() != 2 {
		t.Fatalf("KeyID = %d, want 2", svc.KeyID())
	}
}

func TestCloseReleasesTransportOnce(t *testing.T) {
	fake := transport.NewFake(goodKey)
	svc := New(fake)

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fake.CloseCalls != 1 {
		t.Fatalf("CloseCalls = %d", fake.CloseCalls)
	}

	if got := svc.GetKey("1"); got != transport.InitFailure {
		t.Fatalf("GetKey after Close = %q", got)
	}
	if len(fake.Requests) != 0 {
		t.Fatalf("transport used after Close")
	}
	if svc.KeyID() != 0 {
		t.Fatalf("KeyID = %d", svc.KeyID())
	}
}

type recordingLogger struct {
	warns, debugs int
}

func (r *recordingLogger) InfoObj(string, string, interface{})  {}
func (r *recordingLogger) DebugObj(string, string, interface{}) { r.debugs++ }
func (r *recordingLogger) WarnObj(string, string, interface{})  { r.warns++ }
func (r *recordingLogger) ErrorObj(string, string, interface{}) {}

func TestServiceLogsOutcomes(t *testing.T) {
	log := &recordingLogger{}
	fake := transport.NewFake(goodKey)
	svc := New(fake, WithLogger(log), WithCredentials("", ""))

	svc.GetKey("1")
	fake.Response = "returned HTTP code 403"
	svc.GetKey("2")

	if log.debugs != 1 || log.warns != 1 {
		t.Fatalf("debugs=%d warns=%d", log.debugs, log.warns)
	}
}

func TestServiceWarnsOnceAboutPlainHTTPCredentials(t *testing.T) {
	log := &recordingLogger{}
	fake := transport.NewFake(goodKey)
	svc := New(fake, WithLogger(log))
	if log.warns != 1 {
		t.Fatalf("expected one warning at construction, got %d", log.warns)
	}

	svc.GetKey("1")
	svc.GetKey("2")
	if log.warns != 1 {
		t.Fatalf("successful requests must not warn again, got %d", log.warns)
	}
}

// The checks below run the service over the resty binding against a local key server.

func newKeyServer(t *testing.T) (*httptest.Server, string, string) {
	t.Helper()
	var issued atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/keys" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("authKey") == "" {
			_, _ = io.WriteString(w, "Failure")
			return
		}
		n := issued.Add(1)
		_, _ = io.WriteString(w, fmt.Sprintf("%064x", n))
	}))
	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split server address: %v", err)
	}
	return srv, host, port
}

func TestServiceOverRestyAgainstKeyServer(t *testing.T) {
	srv, host, port := newKeyServer(t)
	defer srv.Close()

	svc := New(transport.NewRestyTransport(5*time.Second, nil), WithEndpoint(host, port))
	defer svc.Close()

	key := svc.GetKey("1")
	if Classify(key) != KindNone || len(key) != 64 {
		t.Fatalf("unexpected key %q", key)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("KeyID = %d", svc.KeyID())
	}

	svc.SetHostname("lillywood.invalid")
	if got := svc.GetKey(key); got != "Could not resolve host: lillywood.invalid" {
		t.Fatalf("GetKey = %q", got)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, closedPort, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	svc.SetHostname(host)
	svc.SetPort(closedPort)
	want := "Failed to connect to " + host + " port " + closedPort + ": Connection refused"
	if got := svc.GetKey(key); got != want {
		t.Fatalf("GetKey = %q, want %q", got, want)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("failures changed KeyID to %d", svc.KeyID())
	}

	svc.SetPort(port)
	if next := svc.GetKey(key); next == key || Classify(next) != KindNone {
		t.Fatalf("unexpected key after restore %q", next)
	}
	if svc.KeyID() != 2 {
		t.Fatalf("KeyID = %d, want 2", svc.KeyID())
	}

	// Without an authKey the server answers with its opaque Failure text,
	// which the client cannot tell apart from a key.
	if got := svc.GetKey(""); got != "Failure" {
		t.Fatalf("GetKey(\"\") = %q", got)
	}
	if svc.KeyID() != 3 {
		t.Fatalf("KeyID = %d, want 3", svc.KeyID())
	}
}

func TestNewDefaultUsesRestyBinding(t *testing.T) {
	svc := NewDefault(WithTransportTimeout(time.Second))
	defer svc.Close()

	if _, ok := svc.transport.(*transport.RestyTransport); !ok {
		t.Fatalf("expected resty binding, got %T", svc.transport)
	}
}

func TestServiceCountsEmptyReplyAsKey(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 1024)
			_, _ = conn.Read(buf)
			conn.Close()
		}
	}()
	host, port, _ := net.SplitHostPort(ln.Addr().String())

	svc := New(transport.NewRestyTransport(time.Second, nil), WithEndpoint(host, port))
	defer svc.Close()

	// An empty reply matches none of the failure shapes, so it is counted.
	if got := svc.GetKey("1"); got != transport.EmptyReply {
		t.Fatalf("GetKey = %q", got)
	}
	if svc.KeyID() != 1 {
		t.Fatalf("KeyID = %d, want 1", svc.KeyID())
	}
}
