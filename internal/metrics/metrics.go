// Package metrics implements the Logging & Metrics ambient component
// (C11): an explicitly-threaded zerolog.Logger (no package-level logger),
// a per-cycle metrics.csv sink, and a best-effort websocket broadcaster
// that pushes CycleResult JSON to any attached dashboard clients without
// ever backpressuring the training pipeline.
package metrics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CSVSink appends one row per cycle to an append-only metrics file, per
// §6's "metrics.csv" persisted-state entry.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	header bool
}

// NewCSVSink opens (or creates) path for appending. The header row is
// written once, the first time Write is called against a fresh file.
func NewCSVSink(path string) (*CSVSink, error) {
	header := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		header = false
	}
	return &CSVSink{path: path, header: header}, nil
}

// CycleRecord is the subset of a pipeline.CycleResult the sink knows how to
// flatten into CSV; the metrics package intentionally does not import
// pipeline (which would create an import cycle since pipeline owns the
// OnCycle hook metrics attaches through), so callers pass fields directly.
type CycleRecord struct {
	Cycle        int
	GamesPlayed  int
	AvgLength    float64
	AvgReward    float64
	BatchUpdates int
	Loss         float64
	GradientNorm float64
	Epsilon      float64
	BufferSize   int
	WallTime     time.Duration
	PerfScore    float64
	IsBest       bool
}

var csvColumns = []string{
	"cycle", "games_played", "avg_length", "avg_reward", "batch_updates",
	"loss", "gradient_norm", "epsilon", "buffer_size", "wall_time_seconds",
	"perf_score", "is_best",
}

// Write appends one CSV row, creating the file and header on first use.
func (s *CSVSink) Write(r CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("metrics: opening %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if s.header {
		if err := w.Write(csvColumns); err != nil {
			return fmt.Errorf("metrics: writing header: %w", err)
		}
		s.header = false
	}
	row := []string{
		strconv.Itoa(r.Cycle),
		strconv.Itoa(r.GamesPlayed),
		strconv.FormatFloat(r.AvgLength, 'f', 4, 64),
		strconv.FormatFloat(r.AvgReward, 'f', 6, 64),
		strconv.Itoa(r.BatchUpdates),
		strconv.FormatFloat(r.Loss, 'f', 6, 64),
		strconv.FormatFloat(r.GradientNorm, 'f', 6, 64),
		strconv.FormatFloat(r.Epsilon, 'f', 4, 64),
		strconv.Itoa(r.BufferSize),
		strconv.FormatFloat(r.WallTime.Seconds(), 'f', 3, 64),
		strconv.FormatFloat(r.PerfScore, 'f', 6, 64),
		strconv.FormatBool(r.IsBest),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("metrics: writing row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// Broadcaster runs a small net/http + gorilla/websocket endpoint that
// fans out CycleResult JSON to connected dashboard clients. It is
// read-only and best-effort: a slow or absent client is dropped rather
// than allowed to block Broadcast, mirroring the teacher's Connection.send
// buffered-channel pattern in internal/server/connection.go.
type Broadcaster struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	server *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBroadcaster constructs a Broadcaster that will serve on addr once
// Serve is called.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logger.With().Str("component", "metrics-ws").Logger(),
		clients: map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve starts the HTTP server on addr in a background goroutine and
// returns immediately; call Shutdown to stop it.
func (b *Broadcaster) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	b.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listening on %s: %w", addr, err)
	}
	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error().Err(err).Msg("metrics websocket server stopped")
		}
	}()
	return nil
}

// Shutdown stops the HTTP server, closing all client connections.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}

func (b *Broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
}

func (b *Broadcaster) writePump(c *client) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcast marshals v to JSON and fans it out to every connected client.
// A client whose send buffer is full is dropped immediately rather than
// allowed to stall the broadcast (best-effort, never backpressures
// training per §4.12).
func (b *Broadcaster) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Warn().Err(err).Msg("marshaling broadcast payload")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			delete(b.clients, c)
			close(c.send)
		}
	}
}
