// Package autostart implements the Autostart Coordinator (spec.md §4.7):
// the WebSocket endpoint mounted at /___riptide_proxy_ws that lets a
// stalled page register interest in a project and drive the engine's
// start stream, fanning progress out to every subscriber.
package autostart

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/permission"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// ErrBadGateway mirrors proxyws.ErrBadGateway: the close code used for
// every autostart handshake failure (spec.md §4.7, §6).
const ErrBadGateway = 1014

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscriber is one live autostart WebSocket connection. Writes are
// serialized through mu since broadcast fans out from the start goroutine
// while the connection's own read loop runs concurrently.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(frame outFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

// Coordinator is the process-wide autostart state: the subscriber set and
// the single `running` flag (spec.md §3, §4.7, §9 Open Question: this flag
// is deliberately process-wide, not per-project).
type Coordinator struct {
	Storage *resolver.Storage
	Gate    permission.Gate

	mu          sync.Mutex
	subscribers map[string]map[*subscriber]bool
	running     bool
}

// NewCoordinator builds a Coordinator bound to storage and gate. Exactly
// one Coordinator should exist per process, since `running` is meant to
// serialize starts globally.
func NewCoordinator(storage *resolver.Storage, gate permission.Gate) *Coordinator {
	return &Coordinator{
		Storage:     storage,
		Gate:        gate,
		subscribers: make(map[string]map[*subscriber]bool),
	}
}

func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := rplog.Named("autostart")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Sugar().Warnf("upgrading autostart websocket: %v", err)
		return
	}
	defer conn.Close()

	sub := &subscriber{conn: conn}
	var registeredProject string
	registered := false
	defer func() {
		if registered {
			c.unsubscribe(registeredProject, sub)
		}
	}()

	for {
		var frame inFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Method {
		case "register":
			p, err := c.Storage.GetOrLoadProject(frame.Project)
			if err != nil || p == nil {
				closeWithReason(conn, "Project not found.")
				return
			}
			if !c.Gate.Allowed(remoteIP(r)) {
				closeWithReason(conn, "Client not allowed.")
				return
			}
			c.subscribe(frame.Project, sub)
			registeredProject = frame.Project
			registered = true
			_ = sub.send(outFrame{Status: "ready"})

		case "start":
			if !registered {
				// Nothing to start without a prior register; spec.md §4.7
				// only documents behavior for a registered connection.
				continue
			}
			c.start(r.Context(), registeredProject)

		default:
			log.Sugar().Debugf("unknown autostart method %q", frame.Method)
		}
	}
}

// start drives the engine's start stream for projectName and fans every
// event out to its subscribers (spec.md §4.7's "start" method). If
// `running` is already set, this call is a silent no-op (property P6: the
// engine's StartProject is invoked exactly once across any number of
// concurrent start messages).
func (c *Coordinator) start(ctx context.Context, projectName string) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	p, err := c.Storage.GetOrLoadProject(projectName)
	if err != nil || p == nil {
		c.broadcast(projectName, outFrame{Status: "error", Msg: "project no longer available"})
		return
	}

	stream, err := c.Storage.Engine().StartProject(ctx, p, p.StartServices())
	if err != nil {
		c.broadcast(projectName, outFrame{Status: "error", Msg: err.Error()})
		return
	}

	failed := false
	for ev := range stream {
		if !ev.Finished {
			status := ev.Status
			c.broadcast(projectName, outFrame{
				Status: "update",
				Update: &updatePayload{Service: ev.ServiceName, Status: &status},
			})
			continue
		}
		if ev.Err != nil {
			failed = true
			c.broadcast(projectName, outFrame{
				Status: "update",
				Update: &updatePayload{Service: ev.ServiceName, Error: ev.Err.Error()},
			})
			continue
		}
		c.broadcast(projectName, outFrame{
			Status: "update",
			Update: &updatePayload{Service: ev.ServiceName, Finished: true},
		})
	}

	if failed {
		c.broadcast(projectName, outFrame{Status: "failed"})
	} else {
		c.broadcast(projectName, outFrame{Status: "success"})
	}
}

// broadcast fans frame out to every current subscriber of projectName.
// Per-subscriber send errors are swallowed (spec.md §4.7: "Broadcast is
// best-effort"); ordering across subscribers is not guaranteed (spec.md §5).
func (c *Coordinator) broadcast(projectName string, frame outFrame) {
	c.mu.Lock()
	subs := make([]*subscriber, 0, len(c.subscribers[projectName]))
	for s := range c.subscribers[projectName] {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.send(frame)
	}
}

func (c *Coordinator) subscribe(projectName string, sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers[projectName] == nil {
		c.subscribers[projectName] = make(map[*subscriber]bool)
	}
	c.subscribers[projectName][sub] = true
}

func (c *Coordinator) unsubscribe(projectName string, sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers[projectName], sub)
}

func closeWithReason(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(ErrBadGateway, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
