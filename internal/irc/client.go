package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dalnet/rbnc/internal/model"
	"github.com/dalnet/rbnc/internal/registry"
	"github.com/dalnet/rbnc/internal/storage"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func versionReply() string {
	return fmt.Sprintf("rbnc %s (built %s, commit %s)", Version, BuildDate, GitCommit)
}

// closeTimeout is how long Close waits for the read loop to finish
const closeTimeout = 5 * time.Second

// Options tune every session created by a process
type Options struct {
	QuitMessage string
	// LogIRC logs every line sent and received
	LogIRC bool
}

// Session is a live connection to one IRC network. Traffic it receives is
// recorded as lines in the server's buffers.
type Session struct {
	conn   *ircevent.Connection
	server model.Server
	store  storage.Store
	log    *zap.Logger

	mu      sync.Mutex
	buffers map[string]model.BufferID // lower-cased name -> id
	system  model.BufferID
	running bool
	done    chan struct{}
}

var _ registry.Session = (*Session)(nil)

// NewSession creates an unopened session for server
func NewSession(server model.Server, store storage.Store, logger *zap.Logger, opts Options) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int64("server", int64(server.ID)), zap.String("addr", server.Addr()))

	username := server.Username
	if username == "" {
		username = server.Nick
	}
	realname := server.Realname
	if realname == "" {
		realname = server.Nick
	}
	quit := opts.QuitMessage
	if quit == "" {
		quit = "rbnc shutting down"
	}

	conn := &ircevent.Connection{
		Server:      server.Addr(),
		Nick:        server.Nick,
		User:        username,
		RealName:    realname,
		QuitMessage: quit,
		Debug:       opts.LogIRC,
		UseTLS:      server.Secure,
		Log:         zap.NewStdLog(logger.Named("wire")),
		// Turns CTCP requests into CTCP_* events; ircevent answers
		// VERSION itself from the Version field
		EnableCTCP: true,
		Version:    versionReply(),
	}
	if server.Secure {
		conn.TLSConfig = &tls.Config{ServerName: server.Host}
	}

	s := &Session{
		conn:    conn,
		server:  server,
		store:   store,
		log:     logger,
		buffers: make(map[string]model.BufferID),
		done:    make(chan struct{}),
	}
	s.registerHandlers()
	return s
}

// Open connects to the network and starts the read loop in the background
func (s *Session) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := s.store.EnsureBuffer(ctx, s.server.ID, s.server.Host, model.BufferOther)
	if err != nil {
		return errors.Wrap(err, "failed to create server buffer")
	}
	s.mu.Lock()
	s.system = buf.ID
	s.buffers[strings.ToLower(buf.Name)] = buf.ID
	s.mu.Unlock()

	s.log.Info("Connecting")
	if err := s.conn.Connect(); err != nil {
		return errors.Wrapf(err, "failed to connect to %s", s.server.Addr())
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.conn.Loop()
	}()
	return nil
}

// Join joins channel, using password as the channel key if non-empty
func (s *Session) Join(channel, password string) error {
	if password == "" {
		return s.conn.Join(channel)
	}
	return s.conn.Send("JOIN", channel, password)
}

// SendMessage sends a PRIVMSG
func (s *Session) SendMessage(target, text string) error {
	return s.conn.Privmsg(target, text)
}

// ChangeNick asks the network for a new nick
func (s *Session) ChangeNick(nick string) error {
	if nick == "" || strings.ContainsAny(nick, " \r\n") {
		return fmt.Errorf("invalid nick %q", nick)
	}
	s.conn.SetNick(nick)
	return nil
}

// Close quits the network and waits briefly for the read loop to exit
func (s *Session) Close() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return
	}

	s.conn.Quit()
	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		s.log.Warn("Read loop did not stop in time")
	}
}
