package proxyws

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func (*notExistErr) Error() string    { return "not found" }
func (*notExistErr) IsNotExist() bool { return true }

func newTestResolver(t *testing.T, eng *engine.Mock) *resolver.Resolver {
	t.Helper()
	loader := &fakeLoader{
		mapping: project.Mapping{"proj1": "proj1.yml"},
		projects: map[string]*project.Project{
			"proj1.yml": {
				Name:     "proj1",
				Services: map[string]project.Service{"api": {Name: "api", Role: "main"}},
			},
		},
	}
	storage := resolver.NewStorage(loader, loader.mapping, eng, time.Minute, time.Minute)
	return &resolver.Resolver{BaseURL: "riptide.test", Storage: storage, Autostart: true}
}

type closeEvent struct {
	code   int
	reason string
}

// TestWebSocketRelay covers S9: frames flow bidirectionally, and a client
// close with a code and reason is forwarded upstream unchanged.
func TestWebSocketRelay(t *testing.T) {
	upstreamClosed := make(chan closeEvent, 1)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.SetCloseHandler(func(code int, reason string) error {
			upstreamClosed <- closeEvent{code, reason}
			return nil
		})

		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, data)
		// Block on a second read so the close handler above fires when
		// the client side closes.
		_, _, _ = conn.ReadMessage()
	}))
	defer upstream.Close()

	_, portStr, err := net.SplitHostPort(upstream.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	eng := &engine.Mock{Addresses: map[string]engine.Address{
		"proj1--api": {Host: "127.0.0.1", Port: port},
	}}
	res := newTestResolver(t, eng)
	h := NewHandler(res)

	proxySrv := httptest.NewServer(h)
	defer proxySrv.Close()

	proxyURL := "ws://" + strings.TrimPrefix(proxySrv.URL, "http://") + "/x"
	reqHeader := http.Header{}
	reqHeader.Set("Host", "proj1--api.riptide.test")
	dialer := websocket.Dialer{}
	clientConn, _, err := dialer.Dial(proxyURL, reqHeader)
	require.NoError(t, err)
	defer clientConn.Close()

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte("hello")))
	mt, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	require.Equal(t, "hello", string(data))

	require.NoError(t, clientConn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(1000, "bye"),
	))

	select {
	case got := <-upstreamClosed:
		require.Equal(t, 1000, got.code)
		require.Equal(t, "bye", got.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never observed the close frame")
	}
}

// TestWebSocketRejectOnResolverFailure covers the 1014 close on any
// non-SUCCESS resolve status (spec.md §4.6.1), including the landing page.
func TestWebSocketRejectOnResolverFailure(t *testing.T) {
	eng := &engine.Mock{Addresses: map[string]engine.Address{}}
	res := newTestResolver(t, eng)
	h := NewHandler(res)

	proxySrv := httptest.NewServer(h)
	defer proxySrv.Close()

	proxyURL := "ws://" + strings.TrimPrefix(proxySrv.URL, "http://") + "/"
	reqHeader := http.Header{}
	reqHeader.Set("Host", "riptide.test")
	dialer := websocket.Dialer{}
	clientConn, _, err := dialer.Dial(proxyURL, reqHeader)
	require.NoError(t, err)
	defer clientConn.Close()

	_, _, err = clientConn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	require.Equal(t, ErrBadGateway, closeErr.Code)
}
