// Package proxyws implements the WebSocket reverse-proxy handler (spec.md
// §4.6): resolve, dial upstream as a WebSocket peer, and relay frames in
// both directions until either side closes.
package proxyws

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// ErrBadGateway is the close code the proxy uses for every resolver
// failure (spec.md §4.6.1, §6: "Proxy close code on resolver failure:
// 1014"). gorilla/websocket has no named constant for 1014, unlike the
// 1000-1011 range it does define, so it is spelled out here.
const ErrBadGateway = 1014

var upgrader = websocket.Upgrader{
	// Subprotocol negotiation is transparent pass-through (spec.md
	// §4.6.3): whatever the client offers, accept it, and the chosen
	// subprotocol is decided once the upstream dial tells us which one
	// it went with.
	CheckOrigin: func(*http.Request) bool { return true },
}

// hopByHopHeaders are stripped before forwarding the handshake request
// upstream; gorilla/websocket's Dialer sets its own versions of all of
// them.
var hopByHopHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Protocol":   true,
}

// Handler is the WebSocket reverse-proxy handler.
type Handler struct {
	Resolver *resolver.Resolver
}

// NewHandler builds a Handler bound to res.
func NewHandler(res *resolver.Resolver) *Handler {
	return &Handler{Resolver: res}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := rplog.Named("proxyws")

	res, err := h.Resolver.Resolve(r.Context(), r.Host)
	if err != nil || res.Status != resolver.Success {
		h.rejectUpgrade(w, r)
		return
	}

	upstreamURL := toWSScheme(res.UpstreamURL) + r.URL.RequestURI()

	reqHeader := make(http.Header)
	for k, vs := range r.Header {
		if hopByHopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		reqHeader[k] = vs
	}
	if proto := filterSubprotocols(r.Header.Get("Sec-WebSocket-Protocol")); proto != "" {
		// Transparent pass-through: offer the client's offered protocol
		// list upstream (minus any malformed tokens), and whichever the
		// upstream echoes back is in turn echoed to the client below.
		reqHeader.Set("Sec-WebSocket-Protocol", proto)
	}

	dialer := &websocket.Dialer{}
	upstreamConn, upstreamResp, err := dialer.DialContext(r.Context(), upstreamURL, reqHeader)
	if err != nil {
		log.Sugar().Warnf("dialing upstream websocket for %s: %v", res.Project.Name, err)
		h.rejectUpgrade(w, r)
		return
	}
	defer upstreamConn.Close()

	respHeader := make(http.Header)
	if upstreamResp != nil {
		if proto := upstreamResp.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
			respHeader.Set("Sec-WebSocket-Protocol", proto)
		}
	}

	clientConn, err := upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		log.Sugar().Warnf("upgrading client websocket for %s: %v", res.Project.Name, err)
		return
	}
	defer clientConn.Close()

	relay(log, clientConn, upstreamConn)
}

// rejectUpgrade closes the handshake with ErrBadGateway instead of
// completing it, per spec.md §4.6.1: every non-SUCCESS resolve status
// (including the landing page) and every resolver error closes with 1014.
func (h *Handler) rejectUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Couldn't even complete the handshake to deliver a close frame;
		// the client already got a non-101 HTTP response from Upgrade.
		return
	}
	defer conn.Close()
	msg := websocket.FormatCloseMessage(ErrBadGateway, "Bad gateway")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// relay runs the bidirectional frame copy until either side closes
// (spec.md §4.6.4-5). Two goroutines, one per direction; the first to
// observe a close propagates it to the other side and both exit.
func relay(log *zap.Logger, client, upstream *websocket.Conn) {
	done := make(chan struct{}, 2)

	go pump(log, client, upstream, done)
	go pump(log, upstream, client, done)

	<-done
}

// pump reads frames from src and writes them to dst, preserving the
// binary/text distinction (spec.md §4.6.4), until src closes or errors. On
// a clean close it forwards the close code/reason to dst (spec.md §4.6.5).
func pump(log *zap.Logger, src, dst *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			code := websocket.CloseNormalClosure
			reason := ""
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
				reason = closeErr.Text
			} else {
				log.Sugar().Debugf("websocket relay read error: %v", err)
			}
			_ = dst.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		}
		if msgType == websocket.CloseMessage {
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			log.Sugar().Debugf("websocket relay write error: %v", err)
			return
		}
	}
}

// filterSubprotocols splits a comma-separated Sec-WebSocket-Protocol
// value and drops any entry that isn't a valid HTTP token, instead of
// forwarding a header that could smuggle something past the upstream's
// own parser.
func filterSubprotocols(raw string) string {
	parts := strings.Split(raw, ",")
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if httpguts.ValidHeaderFieldName(p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func toWSScheme(upstreamURL string) string {
	switch {
	case strings.HasPrefix(upstreamURL, "https://"):
		return "wss://" + strings.TrimPrefix(upstreamURL, "https://")
	case strings.HasPrefix(upstreamURL, "http://"):
		return "ws://" + strings.TrimPrefix(upstreamURL, "http://")
	default:
		return upstreamURL
	}
}
