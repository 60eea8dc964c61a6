package autostart

import "github.com/theCapypara/riptide-proxy/internal/riptideproxy/engine"

// inFrame is a client->server autostart message (spec.md §4.7). Project is
// only meaningful for method "register".
type inFrame struct {
	Method  string `json:"method"`
	Project string `json:"project,omitempty"`
}

// updatePayload is the per-service body of an "update" outFrame. Exactly
// one of Status (in-progress), Finished (success), or Error (failure) is
// set for a given service event.
type updatePayload struct {
	Service  string         `json:"service"`
	Status   *engine.Status `json:"status,omitempty"`
	Finished bool           `json:"finished,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// outFrame is a server->client autostart message. Status is one of
// "ready", "update", "success", "failed", "error" (spec.md §4.7).
type outFrame struct {
	Status string         `json:"status"`
	Update *updatePayload `json:"update,omitempty"`
	Msg    string         `json:"msg,omitempty"`
}
