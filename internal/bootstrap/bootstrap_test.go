package bootstrap

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dalnet/rbnc/internal/model"
	"github.com/dalnet/rbnc/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	server  model.Server
	openErr error

	mu     sync.Mutex
	opened bool
	closed bool
}

func (s *fakeSession) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return s.openErr
}

func (s *fakeSession) Join(string, string) error { return nil }
func (s *fakeSession) SendMessage(string, string) error { return nil }
func (s *fakeSession) ChangeNick(string) error { return nil }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// factory builds fakeSessions, failing Open for any host in failing
func factory(failing map[string]bool, made *sync.Map) Factory {
	return func(server model.Server) registry.Session {
		s := &fakeSession{server: server}
		if failing[server.Host] {
			s.openErr = errors.New("connection refused")
		}
		made.Store(server.ID, s)
		return s
	}
}

func TestBootstrapOne(t *testing.T) {
	reg := registry.New()
	var made sync.Map
	b := New(factory(nil, &made), reg, nil)

	id, err := b.BootstrapOne(context.Background(), model.Server{ID: 4, Host: "irc.example.org", Port: 6697})
	require.NoError(t, err)
	assert.Equal(t, model.ServerID(4), id)

	s, ok := reg.Get(4)
	require.True(t, ok)
	assert.True(t, s.(*fakeSession).opened)
}

func TestBootstrapOneOpenFailure(t *testing.T) {
	reg := registry.New()
	var made sync.Map
	b := New(factory(map[string]bool{"down.example.org": true}, &made), reg, nil)

	_, err := b.BootstrapOne(context.Background(), model.Server{ID: 9, Host: "down.example.org", Port: 6697})
	require.Error(t, err)

	_, ok := reg.Get(9)
	assert.False(t, ok, "failed session must not be registered")

	s, _ := made.Load(model.ServerID(9))
	assert.True(t, s.(*fakeSession).closed)
}

func TestBootstrapOneDuplicate(t *testing.T) {
	reg := registry.New()
	var made sync.Map
	b := New(factory(nil, &made), reg, nil)
	server := model.Server{ID: 2, Host: "irc.example.org", Port: 6697}

	_, err := b.BootstrapOne(context.Background(), server)
	require.NoError(t, err)
	first, _ := reg.Get(2)

	_, err = b.BootstrapOne(context.Background(), server)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrAlreadyRegistered))

	current, _ := reg.Get(2)
	assert.Same(t, first, current)
	second, _ := made.Load(model.ServerID(2))
	assert.True(t, second.(*fakeSession).closed, "rejected session must be closed")
}

func TestBootstrapAll(t *testing.T) {
	reg := registry.New()
	var made sync.Map
	b := New(factory(map[string]bool{"down.example.org": true}, &made), reg, nil)

	servers := []model.Server{
		{ID: 1, Host: "a.example.org", Port: 6697},
		{ID: 2, Host: "down.example.org", Port: 6697},
		{ID: 3, Host: "b.example.org", Port: 6667},
	}
	err := b.BootstrapAll(context.Background(), servers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down.example.org")

	assert.Equal(t, []model.ServerID{1, 3}, reg.IDs())
}

func TestBootstrapAllEmpty(t *testing.T) {
	reg := registry.New()
	var made sync.Map
	b := New(factory(nil, &made), reg, nil)

	assert.NoError(t, b.BootstrapAll(context.Background(), nil))
	assert.Equal(t, 0, reg.Len())
}
