// Package ws hosts a sim world behind a websocket endpoint: the remote
// variant of the command channel, seen from the peer's side. Commands are
// applied strictly in arrival order; each QUERY is answered with exactly
// one SENSOR.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"physlab.ai/internal/channel"
	"physlab.ai/internal/protocol"
	"physlab.ai/internal/sim"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

type Server struct {
	world *sim.World
	log   *log.Logger

	upgrader websocket.Upgrader

	helloSchema *jsonschema.Schema
	cmdSchema   *jsonschema.Schema
	querySchema *jsonschema.Schema

	nextSession atomic.Uint64
}

func NewServer(w *sim.World, logger *log.Logger) (*Server, error) {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	var err error
	if s.helloSchema, err = protocol.CompileSchema("hello.schema.json"); err != nil {
		return nil, err
	}
	if s.cmdSchema, err = protocol.CompileSchema("cmd.schema.json"); err != nil {
		return nil, err
	}
	if s.querySchema, err = protocol.CompileSchema("query.schema.json"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.handshake(conn) {
			return
		}

		// The reader loop is the only writer on this connection, so
		// replies keep the per-channel ordering for free.
		ch := channel.NewDirect(s.world)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.writeError(conn, protocol.ErrProtoBadRequest, "bad json")
				continue
			}
			switch base.Type {
			case protocol.TypeCmd:
				s.handleCmd(conn, ch, msg)
			case protocol.TypeQuery:
				s.handleQuery(conn, ch, msg)
			default:
				s.writeError(conn, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected type %q", base.Type))
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	if err := validate(s.helloSchema, msg); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"),
			time.Now().Add(time.Second))
		return false
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       fmt.Sprintf("S%d", s.nextSession.Add(1)),
		SimName:         "physlab",
	}
	if err := s.writeJSON(conn, welcome); err != nil {
		return false
	}
	s.log.Printf("session %s: %s connected", welcome.SessionID, hello.ClientName)
	return true
}

func (s *Server) handleCmd(conn *websocket.Conn, ch *channel.Direct, msg []byte) {
	if err := validate(s.cmdSchema, msg); err != nil {
		s.writeError(conn, protocol.ErrBadCommand, err.Error())
		return
	}
	var m protocol.CmdMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		s.writeError(conn, protocol.ErrProtoBadRequest, "bad CMD")
		return
	}
	if err := m.Command.Validate(); err != nil {
		s.writeError(conn, protocol.ErrBadParams, err.Error())
		return
	}
	if err := ch.Send(m.Command); err != nil {
		s.writeError(conn, protocol.ErrBadParams, err.Error())
	}
}

func (s *Server) handleQuery(conn *websocket.Conn, ch *channel.Direct, msg []byte) {
	if err := validate(s.querySchema, msg); err != nil {
		s.writeError(conn, protocol.ErrBadTarget, err.Error())
		return
	}
	var q protocol.QueryMsg
	if err := json.Unmarshal(msg, &q); err != nil {
		s.writeError(conn, protocol.ErrProtoBadRequest, "bad QUERY")
		return
	}

	resp := protocol.SensorMsg{
		Type:            protocol.TypeSensor,
		ProtocolVersion: protocol.Version,
		QueryID:         q.QueryID,
		Target:          q.Target,
	}
	sample, err := ch.QuerySensor(q.Target)
	if err == nil {
		resp.Y = sample.Y
		resp.Found = true
	}
	_ = s.writeJSON(conn, resp)
}

func (s *Server) writeError(conn *websocket.Conn, code, message string) {
	_ = s.writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func validate(s *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
