package synology

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tonimelisma/synophoto/internal/kvstore"
	"github.com/tonimelisma/synophoto/internal/session"
)

// noopSleep returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// fakeUpstream is a minimal Synology host. Logins mint sid-1, sid-2, ...;
// entry.cgi requests are dispatched by "api.method".
type fakeUpstream struct {
	t      *testing.T
	srv    *httptest.Server
	logins atomic.Int32

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	lastForm map[string]string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	f := &fakeUpstream{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		lastForm: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(authPath, f.serveAuth)
	mux.HandleFunc(entryPath, f.serveEntry)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeUpstream) handle(apiMethod string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[apiMethod] = h
}

func (f *fakeUpstream) callCount(apiMethod string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[apiMethod]
}

func (f *fakeUpstream) serveAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	for k := range r.PostForm {
		f.lastForm[k] = r.PostForm.Get(k)
	}
	f.mu.Unlock()

	if r.PostForm.Get("passwd") != "secret" {
		writeJSON(w, `{"success":false,"error":{"code":400}}`)
		return
	}

	n := f.logins.Add(1)
	writeJSON(w, fmt.Sprintf(`{"success":true,"data":{"sid":"sid-%d","synotoken":"tok-%d","did":"dev-1"}}`, n, n))
}

func (f *fakeUpstream) serveEntry(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("api") + "." + r.URL.Query().Get("method")

	f.mu.Lock()
	f.calls[key]++
	h := f.handlers[key]
	f.mu.Unlock()

	if h == nil {
		writeJSON(w, `{"success":false,"error":{"code":103}}`)
		return
	}

	h(w, r)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// newTestClient wires a Client, Authenticator and session.Manager against f
// with instant retry sleeps.
func newTestClient(t *testing.T, f *fakeUpstream) (*Client, *session.Manager) {
	t.Helper()

	auth := NewAuthenticator(f.srv.URL, f.srv.Client(), Credentials{Username: "svc", Password: "secret"}, slog.Default())
	mgr := session.NewManager(kvstore.NewMemory(), auth.Login, session.Options{
		PollInterval: time.Millisecond,
		PollAttempts: 1000,
	})

	c := NewClient(f.srv.URL, f.srv.Client(), mgr, slog.Default())
	c.sleepFunc = noopSleep

	return c, mgr
}
