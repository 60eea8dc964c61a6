// Package server assembles the Router/Server (spec.md §4.9): the single
// chi mux that dispatches to the autostart coordinator, the WebSocket
// proxy, or the HTTP proxy, and the HTTP/HTTPS listener pair built on
// top of it. Grounded on ManuGH-xg2g's server_routes.go for the chi
// wiring style (chi.NewRouter + chi middleware stack) and on caddy's own
// dual-listener pattern for running HTTP and HTTPS side by side.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http/httpguts"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/autostart"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/proxyhttp"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/proxyws"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// AutostartPath is the exact path mounted for the Autostart Coordinator
// (spec.md §4.9, §6).
const AutostartPath = "/___riptide_proxy_ws"

// RouteProvider optionally mounts additional routes under a dedicated
// sub-hostname (spec.md §4.9: "Optional sub-hostnames may mount
// additional routes (mission-control, profiling)."). Hostname is the
// exact sub-label, e.g. "mission-control" for "mission-control.<base_url>".
type RouteProvider interface {
	Hostname() string
	http.Handler
}

// Config holds everything needed to assemble the mux.
type Config struct {
	BaseURL        string
	HTTPHandler    *proxyhttp.Handler
	WSHandler      *proxyws.Handler
	Autostart      *autostart.Coordinator
	RouteProviders []RouteProvider
}

// New assembles the chi mux implementing spec.md §4.9's three route
// families, plus any optional RouteProviders mounted by sub-hostname.
func New(cfg Config) http.Handler {
	providers := make(map[string]http.Handler, len(cfg.RouteProviders))
	for _, p := range cfg.RouteProviders {
		providers[p.Hostname()] = p
	}

	r := chi.NewRouter()
	// honor X-Forwarded-* so the client IP seen by the Permission Gate
	// and the injected X-Real-Ip header reflect the real peer even when
	// riptide-proxy itself sits behind another proxy (spec.md §4.9).
	r.Use(middleware.RealIP)

	r.Mount(AutostartPath, cfg.Autostart)

	r.Handle("/*", dispatch(cfg.BaseURL, providers, cfg.WSHandler, cfg.HTTPHandler))

	return r
}

// dispatch implements the remaining two route families of spec.md §4.9:
// a sub-hostname match for an optional RouteProvider takes precedence,
// then an Upgrade: websocket request goes to the WS handler, everything
// else to the HTTP handler.
func dispatch(baseURL string, providers map[string]http.Handler, ws *proxyws.Handler, h *proxyhttp.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(providers) > 0 {
			if sub, ok := subHostname(r.Host, baseURL); ok {
				if provider, ok := providers[sub]; ok {
					provider.ServeHTTP(w, r)
					return
				}
			}
		}
		if isWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		h.ServeHTTP(w, r)
	}
}

// subHostname returns the single label preceding ".<baseURL>" in host, if
// host is exactly "<label>.<baseURL>" (optionally with a port). Project
// hostnames fall under this same shape, so a RouteProvider's Hostname()
// effectively reserves one label out of the project namespace - the same
// tradeoff the Python source's mission-control/profiling mounts made.
func subHostname(host, baseURL string) (string, bool) {
	host = stripPort(host)
	suffix := "." + baseURL
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i != -1 {
		return host[:i]
	}
	return host
}

func isWebSocketUpgrade(r *http.Request) bool {
	return httpguts.HeaderValuesContainsToken(r.Header.Values("Connection"), "Upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Run starts the HTTP listener and, if httpsAddr and tlsConfig are both
// set, the HTTPS listener sharing the same handler, blocking until ctx is
// cancelled or either listener fails (spec.md §4.9, §5: "created on
// server start (ephemeral), released on shutdown").
func Run(ctx context.Context, handler http.Handler, httpAddr, httpsAddr string, tlsConfig *tls.Config) error {
	httpSrv := &http.Server{Addr: httpAddr, Handler: handler}

	errCh := make(chan error, 2)
	go func() {
		rplog.Named("server").Sugar().Infof("listening for HTTP on %s", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listener: %w", err)
			return
		}
		errCh <- nil
	}()

	var httpsSrv *http.Server
	if httpsAddr != "" && tlsConfig != nil {
		httpsSrv = &http.Server{Addr: httpsAddr, Handler: handler, TLSConfig: tlsConfig}
		go func() {
			rplog.Named("server").Sugar().Infof("listening for HTTPS on %s", httpsAddr)
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https listener: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		_ = httpSrv.Shutdown(context.Background())
		if httpsSrv != nil {
			_ = httpsSrv.Shutdown(context.Background())
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = httpSrv.Shutdown(context.Background())
			if httpsSrv != nil {
				_ = httpsSrv.Shutdown(context.Background())
			}
			return err
		}
	}
	return nil
}
