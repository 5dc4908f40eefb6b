package cmd

import (
	"context"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/client"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/config"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

// backend is what the CLI talks to, acting as one user: the local store or
// a flowboard server.
type backend interface {
	collab.Collaborator
	ListProjects(ctx context.Context) ([]collab.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Capabilities(ctx context.Context, projectID string) (authz.Capabilities, error)
}

var (
	_ backend = (*store.Actor)(nil)
	_ backend = (*client.Client)(nil)
)

// connection is an open backend plus, for boards, its change feed.
type connection struct {
	backend  backend
	notifier collab.Notifier
	remote   bool
	closers  []func()
}

func (c *connection) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

type connectOptions struct {
	// anonymous allows running without a user, which only reaches public
	// projects.
	anonymous bool
	// live subscribes to change notifications.
	live bool
}

// connect opens the backend named by the configuration: server.url when
// set, the SQLite database otherwise.
func connect(ctx context.Context, cfg *config.Config, logger *log.Logger, opts connectOptions) (*connection, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.User.ID == "" && !opts.anonymous {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "no acting user").
			WithSuggestions("Pass --user <id>", "Or set it once: flowboard config set user.id <id>")
	}

	if cfg.Server.URL != "" {
		return connectRemote(ctx, cfg, logger, opts)
	}

	conn := &connection{}
	var storeOpts []store.Option
	storeOpts = append(storeOpts, store.WithLogger(logger))
	if opts.live {
		// Only edits made through this process arrive; use a server to
		// see other people's changes live.
		hub := collab.NewHub()
		conn.notifier = hub
		storeOpts = append(storeOpts, store.WithPublisher(hub))
	}
	st, err := store.Open(cfg.Store.Path, storeOpts...)
	if err != nil {
		return nil, err
	}
	conn.closers = append(conn.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	})
	conn.backend = st.As(cfg.User.ID)
	return conn, nil
}

func connectRemote(ctx context.Context, cfg *config.Config, logger *log.Logger, opts connectOptions) (*connection, error) {
	c, err := client.New(client.Config{
		BaseURL:            cfg.Server.URL,
		UserID:             cfg.User.ID,
		ConditionalUpdates: true,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	conn := &connection{backend: c, remote: true}
	if !opts.live {
		return conn, nil
	}

	notifier, err := collab.DialSocket(ctx, c.BaseURL(), logger)
	if err != nil {
		// The board still opens; it just will not follow other people's
		// edits until it is reloaded.
		logger.LogError(ctx, "live updates unavailable", err)
		return conn, nil
	}
	conn.notifier = notifier
	conn.closers = append(conn.closers, func() { _ = notifier.Close() })
	return conn, nil
}
