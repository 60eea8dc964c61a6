package proxyhttp

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/engine"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
)

type fakeLoader struct {
	mapping  project.Mapping
	projects map[string]*project.Project
}

func (f *fakeLoader) LoadMapping() (project.Mapping, error) {
	out := make(project.Mapping, len(f.mapping))
	for k, v := range f.mapping {
		out[k] = v
	}
	return out, nil
}

func (f *fakeLoader) LoadProject(path string) (*project.Project, error) {
	p, ok := f.projects[path]
	if !ok {
		return nil, &notExistErr{}
	}
	return p, nil
}

type notExistErr struct{}

func (*notExistErr) Error() string     { return "not found" }
func (*notExistErr) IsNotExist() bool { return true }

func newTestHandler(t *testing.T, eng *engine.Mock) (*Handler, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{
		mapping: project.Mapping{"proj1": "proj1.yml"},
		projects: map[string]*project.Project{
			"proj1.yml": {
				Name:     "proj1",
				Services: map[string]project.Service{"web": {Name: "web", Role: "main"}},
			},
		},
	}
	storage := resolver.NewStorage(loader, loader.mapping, eng, time.Minute, time.Minute)
	res := &resolver.Resolver{BaseURL: "riptide.test", Storage: storage, Autostart: true}
	tpl, err := NewTemplates()
	require.NoError(t, err)
	h := NewHandler(res, tpl, 2*time.Second, 5*time.Second)
	return h, loader
}

// TestReverseProxySuccess is scenario S1.
func TestReverseProxySuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/x", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Real-Ip"))
		w.Header().Set("Content-Length", "5") // stripped; the proxy sets its own from the forwarded body
		w.Header().Set("Transfer-Encoding", "chunked")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	_, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	eng := &engine.Mock{Addresses: map[string]engine.Address{
		"proj1--web": {Host: "127.0.0.1", Port: port},
	}}
	h, _ := newTestHandler(t, eng)

	req := httptest.NewRequest(http.MethodGet, "http://proj1--web.riptide.test/x", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "riptide proxy", resp.Header.Get("X-Forwarded-By"))
	assert.Equal(t, "yes", resp.Header.Get("X-Upstream"))
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.Empty(t, resp.Header.Get("Transfer-Encoding"))
	assert.Empty(t, resp.Header.Get("Connection"))
}

// TestLandingPage covers S2's status code only; the project listing and
// the load-error half are not asserted here.
func TestLandingPage(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	h, _ := newTestHandler(t, eng)
	req := httptest.NewRequest(http.MethodGet, "http://riptide.test/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

// TestProjectNotFound covers S3.
func TestProjectNotFound(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	h, _ := newTestHandler(t, eng)
	req := httptest.NewRequest(http.MethodGet, "http://nope.riptide.test/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

// TestNoMainService covers S4.
func TestNoMainService(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	h, loader := newTestHandler(t, eng)
	loader.projects["proj1.yml"].Services = map[string]project.Service{"db": {Name: "db"}}
	req := httptest.NewRequest(http.MethodGet, "http://proj1.riptide.test/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}

// TestRedirectForwardedUnchanged covers S5: a 302 from upstream is
// forwarded, not followed.
func TestRedirectForwardedUnchanged(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer upstream.Close()
	_, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	eng := &engine.Mock{Addresses: map[string]engine.Address{"proj1--web": {Host: "127.0.0.1", Port: port}}}
	h, _ := newTestHandler(t, eng)
	req := httptest.NewRequest(http.MethodGet, "http://proj1--web.riptide.test/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

// TestNotStartedAutostartDefaultServiceShowsStartPage covers the
// preserved "bug" of spec.md §9: with autostart enabled, a resolved
// service that is a member of default_services gets the start-flow page.
func TestNotStartedAutostartDefaultServiceShowsStartPage(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	h, loader := newTestHandler(t, eng)
	loader.projects["proj1.yml"].DefaultServices = []string{"web"}
	req := httptest.NewRequest(http.MethodGet, "http://proj1--web.riptide.test/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}

// TestNotStartedAutostartNonDefaultServiceShowsNotStartedPage covers the
// other half of the same preserved bug: a resolved service outside
// default_services gets the plain not-started page even though autostart
// is enabled, instead of being started.
func TestNotStartedAutostartNonDefaultServiceShowsNotStartedPage(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	h, loader := newTestHandler(t, eng)
	loader.projects["proj1.yml"].Services["worker"] = project.Service{Name: "worker"}
	loader.projects["proj1.yml"].DefaultServices = []string{"web"}
	req := httptest.NewRequest(http.MethodGet, "http://proj1--worker.riptide.test/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode)
}

// TestConnectionRefusedRetriesThenFails covers S6: first attempt gets
// ECONNREFUSED, flush+retry happens once; since nothing is listening on
// the retry either, the second attempt yields 500 (no infinite retry).
func TestConnectionRefusedRetriesThenFails(t *testing.T) {
	// Grab a port and immediately free it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	_, portStr, _ := net.SplitHostPort(addr)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	eng := &engine.Mock{Addresses: map[string]engine.Address{"proj1--web": {Host: "127.0.0.1", Port: port}}}
	h, _ := newTestHandler(t, eng)
	req := httptest.NewRequest(http.MethodGet, "http://proj1--web.riptide.test/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	// AddressFor was called twice: once originally, once after the
	// cache-flush retry re-resolved the (now-flushed) address cache.
	assert.EqualValues(t, 2, eng.AddressCalls.Load())
}
