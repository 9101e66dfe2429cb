package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.csv")

	sink, err := NewCSVSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(CycleRecord{Cycle: 0, GamesPlayed: 5, AvgLength: 30.5, PerfScore: 0.1}))
	require.NoError(t, sink.Write(CycleRecord{Cycle: 1, GamesPlayed: 5, AvgLength: 32.0, PerfScore: 0.2, IsBest: true}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 data rows
	require.Equal(t, csvColumns, rows[0])
	require.Equal(t, "0", rows[1][0])
	require.Equal(t, "1", rows[2][0])
	require.Equal(t, "true", rows[2][len(rows[2])-1])
}

func TestCSVSinkResumesWithoutRewritingHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.csv")

	first, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, first.Write(CycleRecord{Cycle: 0, GamesPlayed: 5}))

	second, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, second.Write(CycleRecord{Cycle: 1, GamesPlayed: 5}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), strings.Join(csvColumns, ",")))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestBroadcasterFansOutToConnectedClients(t *testing.T) {
	port := freePort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	b := NewBroadcaster(zerolog.Nop())
	require.NoError(t, b.Serve(addr))
	defer b.Shutdown(context.Background())

	var conn *websocket.Conn
	var dialErr error
	for i := 0; i < 20; i++ {
		conn, _, dialErr = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if dialErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, dialErr)
	defer conn.Close()

	// Give the server goroutine a moment to register the new client before
	// broadcasting, since handleWS's registration races the dial's return.
	time.Sleep(20 * time.Millisecond)
	b.Broadcast(CycleRecord{Cycle: 7, GamesPlayed: 5, PerfScore: 0.42})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"Cycle":7`)
}

func TestBroadcasterDropsSlowClientInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	c := &client{send: make(chan []byte)} // unbuffered and never drained: any send would block
	b.clients[c] = struct{}{}

	done := make(chan struct{})
	go func() {
		b.Broadcast(CycleRecord{Cycle: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client instead of dropping it")
	}

	b.mu.Lock()
	_, stillPresent := b.clients[c]
	b.mu.Unlock()
	require.False(t, stillPresent)
}
