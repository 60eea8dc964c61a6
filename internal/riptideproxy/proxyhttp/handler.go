// Package proxyhttp implements the HTTP reverse-proxy handler (spec.md
// §4.5): resolve, forward, and map errors onto status pages.
package proxyhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// Default upstream timeouts (spec.md §4.5: "Connect timeout and full
// request timeout are distinct constants").
const (
	DefaultUpstreamConnectTimeout = 20 * time.Second
	DefaultUpstreamRequestTimeout = 60 * time.Second
)

// strippedResponseHeaders are never copied from the upstream response: the
// first three are recomputed by the transport layer, the last is
// connection-scoped (spec.md §4.5.3, property P5).
var strippedResponseHeaders = map[string]bool{
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
	"Connection":        true,
}

// Handler is the HTTP reverse-proxy handler. One instance is shared across
// all requests; mutable per-request state (the retry flag) lives on the
// stack of handle, bounded to a recursion depth of 1 (spec.md §9).
type Handler struct {
	Resolver  *resolver.Resolver
	Templates *Templates

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	client *http.Client
}

// NewHandler builds a Handler with the given timeouts wired into its
// upstream http.Client (connect timeout on the dialer, request timeout as
// the overall context deadline). Redirects are never followed (spec.md
// §4.5.2): the client hands back 3xx responses for transparent
// forwarding instead of chasing Location itself.
func NewHandler(res *resolver.Resolver, tpl *Templates, connectTimeout, requestTimeout time.Duration) *Handler {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	return &Handler{
		Resolver:       res,
		Templates:      tpl,
		ConnectTimeout: connectTimeout,
		RequestTimeout: requestTimeout,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

var supportedMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodPut: true,
	http.MethodOptions: true,
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !supportedMethods[r.Method] {
		http.Error(w, "method not supported", http.StatusMethodNotAllowed)
		return
	}
	h.handle(w, r, false)
}

// handle drives a single attempt at resolving+forwarding the request,
// retrying exactly once on a cache-flush-worthy upstream failure (spec.md
// P4).
func (h *Handler) handle(w http.ResponseWriter, r *http.Request, retried bool) {
	log := rplog.Named("proxyhttp")

	res, err := h.Resolver.Resolve(r.Context(), r.Host)
	if err != nil {
		var loadErr *resolver.ProjectLoadError
		if errors.As(err, &loadErr) {
			h.pp500ProjectLoad(w, loadErr)
			return
		}
		h.pp500(w, err)
		return
	}

	switch res.Status {
	case resolver.NoProject:
		h.ppLandingPage(w)
	case resolver.ProjectNotFound:
		h.ppProjectNotFound(w, res.ProjectName)
	case resolver.NoMainService:
		h.ppNoMainService(w, res.Project)
	case resolver.ServiceNotFound:
		h.ppServiceNotFound(w, res.Project, res.RequestedService)
	case resolver.NotStarted:
		h.ppProjectNotStarted(w, res.Project, res.ResolvedService)
	case resolver.NotStartedAutostart:
		// Preserved as specified (spec.md §9 Open Questions): this checks
		// default-service membership, not whether the service is actually
		// about to be started. A service outside default_services gets the
		// plain not-started page even though autostart is enabled.
		if isDefaultService(res.Project, res.ResolvedService) {
			h.ppStartProject(w, res.Project, res.ResolvedService)
		} else {
			h.ppProjectNotStarted(w, res.Project, res.ResolvedService)
		}
	case resolver.Success:
		h.reverseProxy(w, r, res, retried)
	default:
		log.Sugar().Errorf("unknown resolve status %d", res.Status)
		h.pp500(w, fmt.Errorf("unknown resolve status %d", res.Status))
	}
}

func (h *Handler) reverseProxy(w http.ResponseWriter, r *http.Request, res resolver.ResolveResult, retried bool) {
	log := rplog.Named("proxyhttp")
	log.Sugar().Debugf("handling %s request to %s (%s)", r.Method, res.Project.Name, res.UpstreamURL)

	ctx, cancel := context.WithTimeout(r.Context(), h.RequestTimeout)
	defer cancel()

	upstreamURL := res.UpstreamURL + r.URL.RequestURI()

	var body io.ReadCloser = r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL, body)
	if err != nil {
		h.pp502(w, err)
		return
	}
	req.Header = r.Header.Clone()

	remoteIP := remoteIP(r)
	scheme := requestScheme(r)
	req.Header.Set("X-Real-Ip", remoteIP)
	req.Header.Add("X-Forwarded-For", remoteIP)
	req.Header.Set("X-Forwarded-Proto", scheme)
	req.Header.Set("X-Scheme", scheme)

	resp, err := h.client.Do(req)
	if err != nil {
		h.handleUpstreamError(w, r, res, err, retried)
		return
	}
	defer resp.Body.Close()

	h.forwardResponse(w, resp)
}

func (h *Handler) handleUpstreamError(w http.ResponseWriter, r *http.Request, res resolver.ResolveResult, err error, retried bool) {
	log := rplog.Named("proxyhttp")

	if r.Context().Err() == context.Canceled {
		// Client went away before upstream answered. The 499 status is
		// purely for observability; no body is written (spec.md §4.5.5).
		log.Sugar().Debugf("client closed request for %s before upstream responded", res.Project.Name)
		w.WriteHeader(499)
		return
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		h.ppGatewayTimeout(w, res.Project, res.ResolvedService)
		return
	}

	if isConnectionError(err) {
		if retried {
			h.pp500(w, fmt.Errorf("retry after cache flush also failed: %w", err))
			return
		}
		log.Sugar().Debugf("upstream unreachable for %s, flushing caches and retrying once: %v", res.Project.Name, err)
		h.Resolver.Storage.FlushAll()
		h.handle(w, r, true)
		return
	}

	h.pp502(w, err)
}

// isConnectionError reports whether err looks like an OS-level network
// failure (connection refused, no route to host, DNS failure) rather than
// a timeout or a malformed-response error - spec.md §4.5.4's
// "Connection/OS errors" category, which triggers the cache-flush retry.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func (h *Handler) forwardResponse(w http.ResponseWriter, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.pp502(w, err)
		return
	}

	dst := w.Header()
	for header, values := range resp.Header {
		if strippedResponseHeaders[header] {
			continue
		}
		for _, v := range values {
			dst.Add(header, v)
		}
	}
	dst.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	dst.Set("X-Forwarded-By", "riptide proxy")

	w.WriteHeader(resp.StatusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// isDefaultService reports whether name is one of p's configured
// default_services - or, when the project sets no explicit list, every
// service counts (matching project.Project.StartServices()'s
// fallback-to-all-services rule).
func isDefaultService(p *project.Project, name string) bool {
	if p == nil {
		return false
	}
	if p.DefaultServices == nil {
		return true
	}
	for _, s := range p.DefaultServices {
		if s == name {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
