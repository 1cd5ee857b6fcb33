// Package storage persists users, servers, buffers and lines.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dalnet/rbnc/internal/model"
)

// ErrNotFound is returned when a record lookup finds nothing
var ErrNotFound = errors.New("record not found")

// Store is the persistence layer consumed by the dispatcher and sessions.
//
// Every call is atomic on its own; callers do not get transactions.
type Store interface {
	User(ctx context.Context, id model.UserID) (model.User, error)
	Users(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, user model.User) (model.User, error)

	Server(ctx context.Context, id model.ServerID) (model.Server, error)
	Servers(ctx context.Context) ([]model.Server, error)
	// CreateServer always assigns a fresh identifier.
	CreateServer(ctx context.Context, params model.ServerParams) (model.Server, error)

	Buffer(ctx context.Context, id model.BufferID) (model.Buffer, error)
	Buffers(ctx context.Context) ([]model.Buffer, error)
	// EnsureBuffer finds the buffer named name on server, creating it with
	// kind if it does not exist yet. Names compare case-insensitively.
	EnsureBuffer(ctx context.Context, server model.ServerID, name string, kind model.BufferKind) (model.Buffer, error)

	AppendLine(ctx context.Context, line model.Line) (model.Line, error)
	// Lines returns the newest limit lines of a buffer, oldest first.
	Lines(ctx context.Context, buffer model.BufferID, limit int) ([]model.Line, error)

	Close() error
}
