// Package devtools is a tiny JSON-RPC introspection bridge over a
// running Engine: engine/stats and engine/deopt (force a DebuggerAttached
// deopt on a named function). It is a companion surface, not part of the
// engine core spec.md describes (spec §1 scope is the core, not
// tooling), sketched in because the teacher ships the analogous surface
// for its own language (internal/lsp).
//
// Initially planned to reuse tliron/glsp directly (the teacher's LSP
// stack), but glsp's request/notification set is the Language Server
// Protocol's own vocabulary (textDocument/..., initialize capability
// negotiation) — forcing engine-stats/deopt-trigger traffic through LSP
// method names would be a misfit. Dropped glsp and tliron/commonlog,
// kept the layer underneath: sourcegraph/jsonrpc2, the wire-protocol
// codec glsp itself is built on, used directly with engine-specific
// method names over a gorilla/websocket stream.
package devtools

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
	"go.uber.org/zap"

	"aerojs/internal/engine"
)

// Bridge serves one websocket-framed JSON-RPC2 connection per client,
// each able to poll Engine.Stats() and request a debugger-attached deopt
// mid-run (spec §4.10's deopt reasons name "debugger attached").
type Bridge struct {
	eng      *engine.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New builds a Bridge over eng. logger may be nil (no-op logger).
func New(eng *engine.Engine, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		eng:    eng,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and serves JSON-RPC2
// requests on it until the client disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("devtools: websocket upgrade failed", zap.Error(err))
		return
	}
	stream := jsonrpc2ws.NewObjectStream(conn)
	rpcConn := jsonrpc2.NewConn(r.Context(), stream, jsonrpc2.HandlerWithError(b.handle))
	<-rpcConn.DisconnectNotify()
}

type deoptParams struct {
	FuncName string `json:"funcName"`
}

// handle dispatches the bridge's small, engine-specific method set —
// "engine/stats" and "engine/deopt" — never LSP method names.
func (b *Bridge) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "engine/stats":
		return b.eng.Stats(), nil

	case "engine/deopt":
		var p deoptParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &p); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
		}
		b.eng.TriggerDebuggerDeopt(p.FuncName)
		return struct{}{}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unknown method " + req.Method}
	}
}
