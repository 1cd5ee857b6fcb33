// Package model holds the users, servers, buffers and lines the bouncer
// stores and the kinds they come in.
package model

import (
	"fmt"
	"strings"
	"time"
)

// SystemSender is the sender label used for lines the bouncer writes itself
const SystemSender = "-*-"

// DefaultPort is the port used when /connect is not given one
const DefaultPort = 6697

// ServerID, BufferID, UserID and LineID are persistence-assigned identifiers
type (
	ServerID int64
	BufferID int64
	UserID   int64
	LineID   int64
)

// BufferKind classifies a buffer
type BufferKind string

const (
	BufferChannel BufferKind = "channel"
	BufferQuery   BufferKind = "query"
	BufferOther   BufferKind = "other"
)

// KindForName guesses the buffer kind from an IRC target name
func KindForName(name string) BufferKind {
	if name != "" && strings.ContainsRune("#&+!", rune(name[0])) {
		return BufferChannel
	}
	return BufferQuery
}

// LineKind classifies a line within a buffer
type LineKind string

const (
	LineMessage LineKind = "message"
	LineAction  LineKind = "action"
	LineNotice  LineKind = "notice"
	LineJoin    LineKind = "join"
	LinePart    LineKind = "part"
	LineQuit    LineKind = "quit"
	LineNick    LineKind = "nick"
	LineOther   LineKind = "other"
)

// User holds the default identity used to pre-fill connection parameters
type User struct {
	ID       UserID
	Name     string
	Nick     string
	Username string
	Realname string
}

// Server is the persisted connection parameters for one IRC network
type Server struct {
	ID       ServerID
	Host     string
	Port     int
	Secure   bool
	Nick     string
	Username string
	Realname string
	UserID   UserID
}

// Addr returns host:port
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ServerParams is everything needed to create a Server record
type ServerParams struct {
	Host     string
	Port     int
	Secure   bool
	Nick     string
	Username string
	Realname string
	UserID   UserID
}

// Buffer is a named conversation context belonging to a server
type Buffer struct {
	ID       BufferID
	Name     string
	ServerID ServerID
	Kind     BufferKind
}

// Line is one entry in a buffer
type Line struct {
	ID        LineID
	BufferID  BufferID
	Timestamp time.Time
	Kind      LineKind
	Nick      string
	Content   string
}

// SystemLine builds a line attributed to the bouncer itself
func SystemLine(buffer BufferID, content string) Line {
	return Line{
		BufferID: buffer,
		Kind:     LineOther,
		Nick:     SystemSender,
		Content:  content,
	}
}
