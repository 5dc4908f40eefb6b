package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
)

// Socket.io event names shared by the server broadcaster and SocketNotifier.
const (
	SocketEventJoin   = "join"
	SocketEventLeave  = "leave"
	SocketEventChange = "change"
)

// DefaultSocketPath is where the server mounts socket.io.
const DefaultSocketPath = "/socket.io/"

const dialTimeout = 15 * time.Second

// SocketNotifier receives change notifications from a flowboard server
// over socket.io. One connection carries every subscription; each project
// is a room on the server.
type SocketNotifier struct {
	io     *socket.Socket
	logger *log.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]func(Event)
}

// DialSocket connects to the flowboard server at rawURL (for example
// http://localhost:8080). It blocks until the connection is up, ctx is done
// or the dial times out.
func DialSocket(ctx context.Context, rawURL string, logger *log.Logger) (*SocketNotifier, error) {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.Component("socket").With("url", rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSyncSubscribe, "invalid server URL", err)
	}
	path := parsed.Path
	if path == "" || path == "/" {
		path = DefaultSocketPath
	}

	opts := socket.DefaultOptions()
	opts.SetPath(path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	n := &SocketNotifier{
		io:     io,
		logger: logger,
		subs:   make(map[string]map[uint64]func(Event)),
	}

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("connected", "sid", string(io.Id()))
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.On(types.EventName("connect"), func(...any) {
		// Rooms do not survive a reconnect.
		n.rejoin()
	})
	io.On(types.EventName(SocketEventChange), n.onChange)

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, errors.Wrap(errors.ErrCodeSyncSubscribe, "socket.io connection failed", err).
				WithSuggestion("Check that 'flowboard serve' is running at " + rawURL)
		}
		return n, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, errors.Wrap(errors.ErrCodeSyncSubscribe, "cancelled while connecting", ctx.Err())
	case <-time.After(dialTimeout):
		io.Disconnect()
		return nil, errors.New(errors.ErrCodeSyncSubscribe, fmt.Sprintf("timed out after %s waiting for socket.io connection", dialTimeout))
	}
}

// Subscribe implements Notifier. The first subscription for a project joins
// its room.
func (n *SocketNotifier) Subscribe(projectID string, fn func(Event)) (Subscription, error) {
	if !n.io.Connected() {
		return nil, errors.New(errors.ErrCodeSyncSubscribe, "socket.io connection is down")
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	first := len(n.subs[projectID]) == 0
	if first {
		n.subs[projectID] = make(map[uint64]func(Event))
	}
	n.subs[projectID][id] = fn
	n.mu.Unlock()

	if first {
		n.io.Emit(SocketEventJoin, projectID)
		n.logger.Debug("joined project room", "project_id", projectID)
	}
	return &socketSubscription{n: n, projectID: projectID, id: id}, nil
}

// Close disconnects. Open subscriptions stop receiving events.
func (n *SocketNotifier) Close() error {
	n.io.Disconnect()
	return nil
}

func (n *SocketNotifier) remove(projectID string, id uint64) {
	n.mu.Lock()
	delete(n.subs[projectID], id)
	last := len(n.subs[projectID]) == 0
	if last {
		delete(n.subs, projectID)
	}
	n.mu.Unlock()

	if last && n.io.Connected() {
		n.io.Emit(SocketEventLeave, projectID)
	}
}

func (n *SocketNotifier) rejoin() {
	n.mu.Lock()
	rooms := make([]string, 0, len(n.subs))
	for projectID := range n.subs {
		rooms = append(rooms, projectID)
	}
	n.mu.Unlock()

	for _, projectID := range rooms {
		n.io.Emit(SocketEventJoin, projectID)
	}
}

func (n *SocketNotifier) onChange(data ...any) {
	if len(data) == 0 {
		return
	}
	ev, err := decodeEvent(data[0])
	if err != nil {
		n.logger.Warn("dropping malformed change event", "error", err)
		return
	}

	n.mu.Lock()
	fns := make([]func(Event), 0, len(n.subs[ev.ProjectID]))
	for _, fn := range n.subs[ev.ProjectID] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// decodeEvent accepts whatever the socket.io parser produced for a JSON
// object payload.
func decodeEvent(v any) (Event, error) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Event{}, err
		}
		raw = b
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	if ev.ProjectID == "" || ev.Table == "" {
		return Event{}, fmt.Errorf("incomplete event %q", string(raw))
	}
	return ev, nil
}

type socketSubscription struct {
	n         *SocketNotifier
	projectID string
	id        uint64
	once      sync.Once
}

func (s *socketSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.n.remove(s.projectID, s.id)
	})
}
