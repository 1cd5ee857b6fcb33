// Package bootstrap turns persisted servers into registered live sessions.
package bootstrap

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dalnet/rbnc/internal/model"
	"github.com/dalnet/rbnc/internal/registry"
)

// maxConcurrentDials bounds how many connection attempts BootstrapAll runs
// at once
const maxConcurrentDials = 8

// Factory constructs an unopened session for a server
type Factory func(server model.Server) registry.Session

// Bootstrapper owns the construct, open, register sequence
type Bootstrapper struct {
	factory  Factory
	registry *registry.Registry
	log      *zap.Logger
}

// New creates a Bootstrapper
func New(factory Factory, reg *registry.Registry, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{factory: factory, registry: reg, log: logger}
}

// BootstrapOne opens a session for server and registers it under the
// server's id. A session that fails to open is never registered.
func (b *Bootstrapper) BootstrapOne(ctx context.Context, server model.Server) (model.ServerID, error) {
	log := b.log.With(zap.Int64("server", int64(server.ID)), zap.String("addr", server.Addr()))

	session := b.factory(server)
	if err := session.Open(ctx); err != nil {
		session.Close()
		log.Warn("Connection failed", zap.Error(err))
		return 0, errors.Wrapf(err, "failed to connect to %s", server.Addr())
	}

	if err := b.registry.Put(server.ID, session); err != nil {
		// Two live connections to one server; keep the one already registered
		session.Close()
		log.DPanic("Duplicate session", zap.Error(err))
		return 0, err
	}

	log.Info("Session registered")
	return server.ID, nil
}

// BootstrapAll brings up a session for every server. Connections are made
// concurrently; it returns once every attempt has finished, with the failures
// joined into one error.
func (b *Bootstrapper) BootstrapAll(ctx context.Context, servers []model.Server) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(maxConcurrentDials)

	for _, server := range servers {
		g.Go(func() error {
			if _, err := b.BootstrapOne(ctx, server); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	b.log.Info("Bootstrap complete",
		zap.Int("servers", len(servers)),
		zap.Int("sessions", b.registry.Len()),
		zap.Int("failed", len(errs)))

	return stderrors.Join(errs...)
}
