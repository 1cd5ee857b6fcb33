package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dalnet/rbnc/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL UNIQUE,
	nick     TEXT NOT NULL,
	username TEXT NOT NULL,
	realname TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS servers (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	host     TEXT NOT NULL,
	port     INTEGER NOT NULL,
	secure   INTEGER NOT NULL DEFAULT 0,
	nick     TEXT NOT NULL,
	username TEXT NOT NULL,
	realname TEXT NOT NULL,
	user_id  INTEGER REFERENCES users(id)
);
CREATE TABLE IF NOT EXISTS buffers (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL COLLATE NOCASE,
	server_id INTEGER NOT NULL REFERENCES servers(id),
	kind      TEXT NOT NULL,
	UNIQUE (server_id, name)
);
CREATE TABLE IF NOT EXISTS lines (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	buffer_id INTEGER NOT NULL REFERENCES buffers(id),
	ts        INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	nick      TEXT NOT NULL,
	content   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS lines_buffer ON lines (buffer_id, id);
`

// SQLite is a Store backed by a SQLite database file
type SQLite struct {
	db  *sql.DB
	log *zap.Logger

	// logQueries enables a debug entry for every call
	logQueries bool
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string, logger *zap.Logger, logQueries bool) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// SQLite allows one writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLite{db: db, log: logger, logQueries: logQueries}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) trace(op string, fields ...zap.Field) {
	if s.logQueries {
		s.log.Debug(op, fields...)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Nick, &u.Username, &u.Realname)
	return u, err
}

func scanServer(row scanner) (model.Server, error) {
	var (
		srv    model.Server
		userID sql.NullInt64
	)
	err := row.Scan(&srv.ID, &srv.Host, &srv.Port, &srv.Secure, &srv.Nick, &srv.Username, &srv.Realname, &userID)
	srv.UserID = model.UserID(userID.Int64)
	return srv, err
}

func scanBuffer(row scanner) (model.Buffer, error) {
	var b model.Buffer
	err := row.Scan(&b.ID, &b.Name, &b.ServerID, &b.Kind)
	return b, err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// User looks up a user by id
func (s *SQLite) User(ctx context.Context, id model.UserID) (model.User, error) {
	s.trace("user", zap.Int64("id", int64(id)))
	row := s.db.QueryRowContext(ctx, `SELECT id, name, nick, username, realname FROM users WHERE id = ?`, int64(id))
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, notFound(err, "user %d", id)
	}
	return u, nil
}

// Users returns every user ordered by id
func (s *SQLite) Users(ctx context.Context) ([]model.User, error) {
	s.trace("users")
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, nick, username, realname FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user and returns it with its id set
func (s *SQLite) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	s.trace("create user", zap.String("name", user.Name))
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, nick, username, realname) VALUES (?, ?, ?, ?)`,
		user.Name, user.Nick, user.Username, user.Realname)
	if err != nil {
		return model.User{}, errors.Wrapf(err, "failed to create user %q", user.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, errors.Wrap(err, "failed to read user id")
	}
	user.ID = model.UserID(id)
	return user, nil
}

const serverColumns = `id, host, port, secure, nick, username, realname, user_id`

// Server looks up a server by id
func (s *SQLite) Server(ctx context.Context, id model.ServerID) (model.Server, error) {
	s.trace("server", zap.Int64("id", int64(id)))
	row := s.db.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, int64(id))
	srv, err := scanServer(row)
	if err != nil {
		return model.Server{}, notFound(err, "server %d", id)
	}
	return srv, nil
}

// Servers returns every server ordered by id
func (s *SQLite) Servers(ctx context.Context) ([]model.Server, error) {
	s.trace("servers")
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list servers")
	}
	defer rows.Close()

	var servers []model.Server
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read server")
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// CreateServer inserts a server record
func (s *SQLite) CreateServer(ctx context.Context, p model.ServerParams) (model.Server, error) {
	s.trace("create server", zap.String("host", p.Host), zap.Int("port", p.Port))
	var userID sql.NullInt64
	if p.UserID != 0 {
		userID = sql.NullInt64{Int64: int64(p.UserID), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (host, port, secure, nick, username, realname, user_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Host, p.Port, p.Secure, p.Nick, p.Username, p.Realname, userID)
	if err != nil {
		return model.Server{}, errors.Wrapf(err, "failed to create server %s:%d", p.Host, p.Port)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Server{}, errors.Wrap(err, "failed to read server id")
	}
	return model.Server{
		ID:       model.ServerID(id),
		Host:     p.Host,
		Port:     p.Port,
		Secure:   p.Secure,
		Nick:     p.Nick,
		Username: p.Username,
		Realname: p.Realname,
		UserID:   p.UserID,
	}, nil
}

// Buffer looks up a buffer by id
func (s *SQLite) Buffer(ctx context.Context, id model.BufferID) (model.Buffer, error) {
	s.trace("buffer", zap.Int64("id", int64(id)))
	row := s.db.QueryRowContext(ctx, `SELECT id, name, server_id, kind FROM buffers WHERE id = ?`, int64(id))
	b, err := scanBuffer(row)
	if err != nil {
		return model.Buffer{}, notFound(err, "buffer %d", id)
	}
	return b, nil
}

// Buffers returns every buffer ordered by id
func (s *SQLite) Buffers(ctx context.Context) ([]model.Buffer, error) {
	s.trace("buffers")
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, server_id, kind FROM buffers ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list buffers")
	}
	defer rows.Close()

	var buffers []model.Buffer
	for rows.Next() {
		b, err := scanBuffer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read buffer")
		}
		buffers = append(buffers, b)
	}
	return buffers, rows.Err()
}

// EnsureBuffer finds or creates the buffer (server, name)
func (s *SQLite) EnsureBuffer(ctx context.Context, server model.ServerID, name string, kind model.BufferKind) (model.Buffer, error) {
	s.trace("ensure buffer", zap.Int64("server", int64(server)), zap.String("name", name))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buffers (name, server_id, kind) VALUES (?, ?, ?) ON CONFLICT (server_id, name) DO NOTHING`,
		name, int64(server), string(kind))
	if err != nil {
		return model.Buffer{}, errors.Wrapf(err, "failed to create buffer %q", name)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, server_id, kind FROM buffers WHERE server_id = ? AND name = ?`, int64(server), name)
	b, err := scanBuffer(row)
	if err != nil {
		return model.Buffer{}, notFound(err, "buffer %q", name)
	}
	return b, nil
}

// AppendLine stores a line, stamping it with the current time if unset
func (s *SQLite) AppendLine(ctx context.Context, line model.Line) (model.Line, error) {
	s.trace("append line", zap.Int64("buffer", int64(line.BufferID)), zap.String("kind", string(line.Kind)))
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lines (buffer_id, ts, kind, nick, content) VALUES (?, ?, ?, ?, ?)`,
		int64(line.BufferID), line.Timestamp.UnixNano(), string(line.Kind), line.Nick, line.Content)
	if err != nil {
		return model.Line{}, errors.Wrapf(err, "failed to append line to buffer %d", line.BufferID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Line{}, errors.Wrap(err, "failed to read line id")
	}
	line.ID = model.LineID(id)
	return line, nil
}

// Lines returns up to limit of the newest lines in a buffer, oldest first
func (s *SQLite) Lines(ctx context.Context, buffer model.BufferID, limit int) ([]model.Line, error) {
	s.trace("lines", zap.Int64("buffer", int64(buffer)), zap.Int("limit", limit))
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, buffer_id, ts, kind, nick, content FROM lines WHERE buffer_id = ? ORDER BY id DESC LIMIT ?`,
		int64(buffer), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list lines for buffer %d", buffer)
	}
	defer rows.Close()

	var lines []model.Line
	for rows.Next() {
		var (
			l  model.Line
			ts int64
		)
		if err := rows.Scan(&l.ID, &l.BufferID, &ts, &l.Kind, &l.Nick, &l.Content); err != nil {
			return nil, errors.Wrap(err, "failed to read line")
		}
		l.Timestamp = time.Unix(0, ts).UTC()
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query; callers want reading order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
