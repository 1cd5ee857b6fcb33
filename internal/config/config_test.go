package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalnet/rbnc/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultQuitMessage, cfg.QuitMessage)
	assert.Equal(t, DefaultUserName, cfg.User.Name)
	assert.Equal(t, DefaultNick, cfg.User.Nick)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.LogIRC)
	assert.Empty(t, cfg.Servers)
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database: /var/lib/rbnc/rbnc.db
user:
  name: alice
  nick: alice
  realname: Alice Liddell
servers:
  - host: irc.example.org
    secure: true
  - host: irc.example.net
    port: 6667
    nick: al
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/rbnc/rbnc.db", cfg.Database)
	user := cfg.Identity()
	assert.Equal(t, "alice", user.Username, "username falls back to nick")
	assert.Equal(t, "Alice Liddell", user.Realname)

	require.Len(t, cfg.Servers, 2)
	user.ID = 5
	first := cfg.Servers[0].Params(user)
	assert.Equal(t, model.ServerParams{
		Host: "irc.example.org", Port: 6697, Secure: true,
		Nick: "alice", Username: "alice", Realname: "Alice Liddell", UserID: 5,
	}, first)

	second := cfg.Servers[1].Params(user)
	assert.Equal(t, 6667, second.Port)
	assert.False(t, second.Secure)
	assert.Equal(t, "al", second.Nick)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "servers: [",
		"empty host":   "servers:\n  - port: 6667\n",
		"bad port":     "servers:\n  - host: a\n    port: 0\n",
		"empty nick":   "user:\n  nick: \"\"\n",
		"empty dbpath": "database: \"\"\n",
	}
	for name, content := range tests {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, name)
	}
}

func TestQueryLoggingNeedsInsecure(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_database: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.LogDatabase)
	assert.False(t, cfg.QueryLogging())

	cfg, err = Load(writeConfig(t, "log_database: true\nlog_insecure: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.QueryLogging())

	cfg.LogDatabase = false
	assert.False(t, cfg.QueryLogging())
}
