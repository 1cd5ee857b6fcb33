package irc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
	"go.uber.org/zap"

	"github.com/dalnet/rbnc/internal/model"
)

/*
Handler Summary:

Connection Events:
- connect (onConnect): registration finished
  - Writes a status line to the server buffer
  - Rejoins every channel buffer of this server
- disconnect (onDisconnect): status line; ircevent reconnects on its own

Recorded traffic (record -> route):
- PRIVMSG: channel or query buffer, kind message. CTCP payloads are skipped
  here and arrive as CTCP_* events instead
- CTCP_ACTION: kind action
- NOTICE: channel buffer, else the server buffer
- JOIN / PART: channel buffer
- NICK / QUIT: server buffer
- 001 / 372: welcome and MOTD text into the server buffer

Nick Issues:
- 433 (onNickInUse): ERR_NICKNAMEINUSE, reported in the server buffer

CTCP:
- CTCP_VERSION: answered by ircevent from Connection.Version
*/

func (s *Session) registerHandlers() {
	s.conn.AddConnectCallback(s.onConnect)
	s.conn.AddDisconnectCallback(s.onDisconnect)

	for _, code := range []string{"PRIVMSG", "CTCP_ACTION", "NOTICE", "JOIN", "PART", "NICK", "QUIT", "001", "372"} {
		s.conn.AddCallback(code, func(e ircmsg.Message) { s.record(code, e) })
	}

	s.conn.AddCallback("433", s.onNickInUse)
}

func (s *Session) onConnect(e ircmsg.Message) {
	nick := s.conn.CurrentNick()
	s.log.Info("Connected", zap.String("nick", nick))
	s.systemLine(fmt.Sprintf("connected to %s as %s", s.server.Addr(), nick))

	buffers, err := s.store.Buffers(context.Background())
	if err != nil {
		s.log.Error("Failed to list buffers for rejoin", zap.Error(err))
		return
	}
	for _, b := range buffers {
		if b.ServerID == s.server.ID && b.Kind == model.BufferChannel {
			if err := s.conn.Join(b.Name); err != nil {
				s.log.Warn("Rejoin failed", zap.String("channel", b.Name), zap.Error(err))
			}
		}
	}
}

func (s *Session) onDisconnect(e ircmsg.Message) {
	s.log.Warn("Disconnected")
	s.systemLine("disconnected from " + s.server.Addr())
}

func (s *Session) onNickInUse(e ircmsg.Message) {
	// 433 <me> <nick> :Nickname is already in use
	if len(e.Params) < 2 {
		return
	}
	s.systemLine(fmt.Sprintf("nick %s is already in use", e.Params[1]))
}

// record stores an incoming event as a line in the buffer it belongs to
func (s *Session) record(code string, e ircmsg.Message) {
	name, kind, line, ok := route(code, e, s.conn.CurrentNick())
	if !ok {
		return
	}
	if name == "" {
		name, kind = s.server.Host, model.BufferOther
	}

	id, err := s.bufferID(name, kind)
	if err != nil {
		s.log.Error("Failed to open buffer", zap.String("buffer", name), zap.Error(err))
		return
	}
	line.BufferID = id
	if _, err := s.store.AppendLine(context.Background(), line); err != nil {
		s.log.Error("Failed to record line", zap.String("buffer", name), zap.Error(err))
	}
}

func (s *Session) bufferID(name string, kind model.BufferKind) (model.BufferID, error) {
	key := strings.ToLower(name)
	s.mu.Lock()
	id, ok := s.buffers[key]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	buf, err := s.store.EnsureBuffer(context.Background(), s.server.ID, name, kind)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.buffers[key] = buf.ID
	s.mu.Unlock()
	return buf.ID, nil
}

func (s *Session) systemLine(text string) {
	s.mu.Lock()
	id := s.system
	s.mu.Unlock()
	if id == 0 {
		return
	}
	if _, err := s.store.AppendLine(context.Background(), model.SystemLine(id, text)); err != nil {
		s.log.Error("Failed to record status line", zap.Error(err))
	}
}

// route decides which buffer an event belongs in and what line to write.
// An empty name means the server buffer. self is our current nick.
func route(code string, e ircmsg.Message, self string) (name string, kind model.BufferKind, line model.Line, ok bool) {
	nick := e.Nick()
	last := ""
	if len(e.Params) > 0 {
		last = e.Params[len(e.Params)-1]
	}
	line = model.Line{Nick: nick, Content: last}

	// Messages to us belong in the sender's query buffer
	target := func() (string, model.BufferKind) {
		if len(e.Params) == 0 || strings.EqualFold(e.Params[0], self) {
			return nick, model.BufferQuery
		}
		return e.Params[0], model.KindForName(e.Params[0])
	}

	switch code {
	case "PRIVMSG":
		if len(e.Params) < 2 || strings.HasPrefix(last, "\x01") {
			return "", "", model.Line{}, false
		}
		name, kind = target()
		line.Kind = model.LineMessage

	case "CTCP_ACTION":
		if len(e.Params) < 1 {
			return "", "", model.Line{}, false
		}
		name, kind = target()
		line.Kind = model.LineAction
		line.Content = strings.TrimPrefix(strings.Trim(last, "\x01"), "ACTION ")

	case "NOTICE":
		if len(e.Params) < 2 {
			return "", "", model.Line{}, false
		}
		line.Kind = model.LineNotice
		if model.KindForName(e.Params[0]) == model.BufferChannel {
			name, kind = e.Params[0], model.BufferChannel
		}
		if line.Nick == "" {
			line.Nick = e.Source
		}

	case "JOIN":
		if len(e.Params) < 1 {
			return "", "", model.Line{}, false
		}
		name, kind = e.Params[0], model.BufferChannel
		line.Kind = model.LineJoin
		line.Content = nick + " has joined " + e.Params[0]

	case "PART":
		if len(e.Params) < 1 {
			return "", "", model.Line{}, false
		}
		name, kind = e.Params[0], model.BufferChannel
		line.Kind = model.LinePart
		line.Content = nick + " has left " + e.Params[0]
		if len(e.Params) > 1 {
			line.Content += " (" + e.Params[1] + ")"
		}

	case "NICK":
		if len(e.Params) < 1 {
			return "", "", model.Line{}, false
		}
		line.Kind = model.LineNick
		line.Content = nick + " is now known as " + e.Params[0]

	case "QUIT":
		line.Kind = model.LineQuit
		line.Content = nick + " has quit"
		if last != "" {
			line.Content += " (" + last + ")"
		}

	case "001", "372":
		line.Kind = model.LineOther
		line.Nick = e.Source

	default:
		return "", "", model.Line{}, false
	}
	return name, kind, line, true
}
