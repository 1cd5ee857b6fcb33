package command

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dalnet/rbnc/internal/model"
	"github.com/dalnet/rbnc/internal/registry"
	"github.com/dalnet/rbnc/internal/storage"
)

// Connector opens and registers a session for a freshly created server
type Connector interface {
	BootstrapOne(ctx context.Context, server model.Server) (model.ServerID, error)
}

type request struct {
	buffer model.Buffer
	args   string
	log    *zap.Logger
}

type handlerFunc func(ctx context.Context, req request)

// Dispatcher routes commands typed into a buffer to the session of the
// buffer's server
type Dispatcher struct {
	store     storage.Store
	sessions  *registry.Registry
	connector Connector
	log       *zap.Logger

	handlers map[string]handlerFunc

	// connects tracks /connect attempts still opening their session
	connects sync.WaitGroup
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(store storage.Store, sessions *registry.Registry, connector Connector, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		store:     store,
		sessions:  sessions,
		connector: connector,
		log:       logger,
	}
	d.handlers = map[string]handlerFunc{
		"join":    d.join,
		"query":   d.query,
		"me":      d.me,
		"nick":    d.nick,
		"connect": d.connect,
	}
	return d
}

func (d *Dispatcher) recognised(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Dispatch runs line as a command in buffer. It returns false, doing
// nothing, if line is not a recognised command; the caller should treat it
// as ordinary chat content.
func (d *Dispatcher) Dispatch(ctx context.Context, buffer model.BufferID, line string) bool {
	inv, ok := Parse(line, d.recognised)
	if !ok {
		return false
	}

	log := d.log.With(
		zap.String("dispatch", uuid.NewString()),
		zap.String("command", inv.Name),
		zap.Int64("buffer", int64(buffer)))

	buf, err := d.store.Buffer(ctx, buffer)
	if err != nil {
		log.Warn("Command for unknown buffer", zap.Error(err))
		return true
	}

	log.Debug("Dispatching command", zap.String("args", inv.Args))
	d.handlers[inv.Name](ctx, request{buffer: buf, args: inv.Args, log: log})
	return true
}

// Submit handles a line typed into a buffer: commands are dispatched and
// anything else is sent as a message to the buffer's target.
func (d *Dispatcher) Submit(ctx context.Context, buffer model.BufferID, line string) error {
	if d.Dispatch(ctx, buffer, line) {
		return nil
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}

	buf, err := d.store.Buffer(ctx, buffer)
	if err != nil {
		return err
	}
	req := request{buffer: buf, log: d.log.With(zap.Int64("buffer", int64(buffer)))}
	if buf.Kind == model.BufferOther {
		d.notify(ctx, req, "this buffer does not accept messages, try a /command")
		return nil
	}

	session, ok := d.session(ctx, req)
	if !ok {
		return nil
	}
	return session.SendMessage(buf.Name, line)
}

// notify writes a system line into the request's buffer
func (d *Dispatcher) notify(ctx context.Context, req request, text string) {
	if _, err := d.store.AppendLine(ctx, model.SystemLine(req.buffer.ID, text)); err != nil {
		req.log.Error("Failed to write feedback line", zap.Error(err))
	}
}

// session finds the live session for the request's server. When there is
// none the user is told and ok is false.
func (d *Dispatcher) session(ctx context.Context, req request) (registry.Session, bool) {
	if s, ok := d.sessions.Get(req.buffer.ServerID); ok {
		return s, true
	}

	name := fmt.Sprintf("server %d", req.buffer.ServerID)
	if srv, err := d.store.Server(ctx, req.buffer.ServerID); err == nil {
		name = srv.Addr()
	}
	req.log.Warn("No session for server", zap.Int64("server", int64(req.buffer.ServerID)))
	d.notify(ctx, req, "not connected to "+name)
	return nil, false
}

func (d *Dispatcher) join(ctx context.Context, req request) {
	words := strings.Fields(req.args)
	if len(words) == 0 {
		d.notify(ctx, req, "usage: /join <channel> [password]")
		return
	}
	channel, password := words[0], ""
	if len(words) > 1 {
		password = words[1]
	}

	session, ok := d.session(ctx, req)
	if !ok {
		return
	}
	if err := session.Join(channel, password); err != nil {
		req.log.Warn("Join failed", zap.String("channel", channel), zap.Error(err))
		d.notify(ctx, req, fmt.Sprintf("could not join %s: %v", channel, err))
	}
}

func (d *Dispatcher) query(ctx context.Context, req request) {
	words := strings.Fields(req.args)
	if len(words) == 0 {
		d.notify(ctx, req, "usage: /query <nick>")
		return
	}

	if _, err := d.store.EnsureBuffer(ctx, req.buffer.ServerID, words[0], model.BufferQuery); err != nil {
		req.log.Error("Failed to open query buffer", zap.String("nick", words[0]), zap.Error(err))
	}
}

func (d *Dispatcher) me(ctx context.Context, req request) {
	if req.args == "" {
		d.notify(ctx, req, "usage: /me <action>")
		return
	}

	session, ok := d.session(ctx, req)
	if !ok {
		return
	}
	if err := session.SendMessage(req.buffer.Name, "\x01ACTION "+req.args+"\x01"); err != nil {
		req.log.Warn("Action failed", zap.Error(err))
	}
}

func (d *Dispatcher) nick(ctx context.Context, req request) {
	words := strings.Fields(req.args)
	if len(words) == 0 {
		d.notify(ctx, req, "usage: /nick <new nick>")
		return
	}

	session, ok := d.session(ctx, req)
	if !ok {
		return
	}
	if err := session.ChangeNick(words[0]); err != nil {
		req.log.Warn("Nick change failed", zap.Error(err))
	}
}

func (d *Dispatcher) connect(ctx context.Context, req request) {
	user, err := d.issuer(ctx, req.buffer)
	if err != nil {
		req.log.Error("Failed to look up issuing user", zap.Error(err))
		return
	}

	result := ParseConnect(req.args, user)
	switch result.Outcome {
	case ConnectHelp, ConnectInvalid:
		if result.Outcome == ConnectInvalid {
			req.log.Info("Bad connect arguments", zap.String("reason", result.Reason))
		}
		for _, line := range result.Usage {
			d.notify(ctx, req, line)
		}
		return
	}

	server, err := d.store.CreateServer(ctx, result.Params)
	if err != nil {
		req.log.Error("Failed to create server", zap.Error(err))
		return
	}
	req.log.Info("Connecting to new server", zap.Int64("server", int64(server.ID)), zap.String("addr", server.Addr()))

	// Opening waits for registration with the network, so it runs on its
	// own goroutine. A failed connection leaves the server record behind but
	// never a registry entry.
	d.connects.Add(1)
	go func() {
		defer d.connects.Done()
		if _, err := d.connector.BootstrapOne(ctx, server); err != nil {
			d.notify(context.WithoutCancel(ctx), req, fmt.Sprintf("could not connect to %s: %v", server.Addr(), err))
		}
	}()
}

// Wait blocks until every /connect started by Dispatch has either
// registered its session or given up
func (d *Dispatcher) Wait() {
	d.connects.Wait()
}

// issuer returns the user owning the buffer's server. A server without a
// known owner lends its own identity.
func (d *Dispatcher) issuer(ctx context.Context, buf model.Buffer) (model.User, error) {
	server, err := d.store.Server(ctx, buf.ServerID)
	if err != nil {
		return model.User{}, err
	}
	if server.UserID != 0 {
		user, err := d.store.User(ctx, server.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return model.User{}, err
		}
	}
	return model.User{Nick: server.Nick, Username: server.Username, Realname: server.Realname}, nil
}
