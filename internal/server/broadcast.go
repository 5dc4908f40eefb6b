package server

import (
	"net/http"
	"sync/atomic"

	"github.com/zishang520/socket.io/v2/socket"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
)

// Broadcaster relays store change events to socket.io clients. Each
// project is a room; clients join the rooms of the boards they have open.
type Broadcaster struct {
	io      *socket.Server
	logger  *log.Logger
	metrics *metrics.Metrics
	clients atomic.Int64
}

var _ collab.Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates an unmounted socket.io server.
func NewBroadcaster(logger *log.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		logger = log.Nop()
	}
	b := &Broadcaster{
		io:      socket.NewServer(nil, nil),
		logger:  logger.Component("broadcast"),
		metrics: m,
	}

	b.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		b.clients.Add(1)
		b.logger.Debug("client connected", "sid", string(client.Id()))

		client.On(collab.SocketEventJoin, func(args ...any) {
			if projectID, ok := roomArg(args); ok {
				client.Join(socket.Room(projectID))
				b.logger.Debug("client joined project", "sid", string(client.Id()), "project_id", projectID)
			}
		})
		client.On(collab.SocketEventLeave, func(args ...any) {
			if projectID, ok := roomArg(args); ok {
				client.Leave(socket.Room(projectID))
			}
		})
		client.On("disconnect", func(...any) {
			b.clients.Add(-1)
		})
	})
	return b
}

func roomArg(args []any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	id, ok := args[0].(string)
	return id, ok && id != ""
}

// Handler serves the socket.io endpoint. Mount it at collab.DefaultSocketPath.
func (b *Broadcaster) Handler() http.Handler {
	return b.io.ServeHandler(nil)
}

// Publish implements collab.Publisher.
func (b *Broadcaster) Publish(e collab.Event) {
	payload := map[string]any{
		"table":     string(e.Table),
		"eventType": string(e.EventType),
		"projectId": e.ProjectID,
	}
	if err := b.io.To(socket.Room(e.ProjectID)).Emit(collab.SocketEventChange, payload); err != nil {
		b.logger.Warn("broadcast failed", "event", e.String(), "error", err)
		return
	}
	b.metrics.SyncEvent(string(e.Table), string(e.EventType))
}

// Clients returns how many sockets are connected.
func (b *Broadcaster) Clients() int64 {
	return b.clients.Load()
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.io.Close(nil)
}
