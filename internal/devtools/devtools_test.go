package devtools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/bytecode"
	"aerojs/internal/engine"
)

func runProgram(t *testing.T, eng *engine.Engine) {
	t.Helper()
	fn := &bytecode.Function{
		Name:      "main",
		NumLocals: 0,
		Consts:    []bytecode.Const{{IsNum: true, Num: 1}},
		Code: []bytecode.Instr{
			{Op: bytecode.OpLoadConst, Operand: 0},
			{Op: bytecode.OpReturn},
		},
	}
	prog := &bytecode.Program{Functions: []*bytecode.Function{fn}, Entry: 0}
	_, err := eng.Evaluate(context.Background(), prog)
	require.Nil(t, err)
}

func dialBridge(t *testing.T, srv *httptest.Server) *jsonrpc2.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	stream := jsonrpc2ws.NewObjectStream(wsConn)
	return jsonrpc2.NewConn(context.Background(), stream, nil)
}

func TestEngineStatsOverWebsocket(t *testing.T) {
	eng := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 20}, nil)
	runProgram(t, eng)

	b := New(eng, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	var stats engine.Stats
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := conn.Call(ctx, "engine/stats", nil, &stats)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.InstructionsExecuted, uint64(1))
}

func TestEngineDeoptOverWebsocket(t *testing.T) {
	eng := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 20}, nil)
	runProgram(t, eng)

	b := New(eng, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var reply struct{}
	err := conn.Call(ctx, "engine/deopt", deoptParams{FuncName: "main"}, &reply)
	require.NoError(t, err)
}

func TestUnknownMethodReturnsError(t *testing.T) {
	eng := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 20}, nil)
	b := New(eng, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var reply struct{}
	err := conn.Call(ctx, "engine/bogus", nil, &reply)
	require.Error(t, err)
}
