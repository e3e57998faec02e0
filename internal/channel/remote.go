package channel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"physlab.ai/internal/protocol"
)

const (
	handshakeTimeout    = 5 * time.Second
	writeTimeout        = 5 * time.Second
	defaultQueryTimeout = 2 * time.Second
)

// Remote drives a simulation peer over a persistent websocket. A single
// writer (the orchestration loop) keeps per-channel ordering; a reader
// goroutine routes SENSOR responses back to the one outstanding query.
type Remote struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serializes writes; ordering comes from the caller

	mu      sync.Mutex
	pending map[uint64]chan protocol.SensorMsg
	nextID  uint64
	closed  bool
	err     error // first failure, wraps ErrClosed

	queryTimeout time.Duration
}

// Dial connects, performs the HELLO/WELCOME handshake, and starts the
// reader. The returned channel is ready for Send/QuerySensor.
func Dial(url, clientName string) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      clientName,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake: expected WELCOME, got %q", welcome.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	r := &Remote{
		conn:         conn,
		pending:      map[uint64]chan protocol.SensorMsg{},
		queryTimeout: defaultQueryTimeout,
	}
	go r.readLoop()
	return r, nil
}

// SetQueryTimeout bounds the sensor round trip. Must be called before the
// first QuerySensor.
func (r *Remote) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		r.queryTimeout = d
	}
}

func (r *Remote) readLoop() {
	for {
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			r.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type != protocol.TypeSensor {
			continue
		}
		var s protocol.SensorMsg
		if err := json.Unmarshal(msg, &s); err != nil {
			continue
		}
		r.mu.Lock()
		ch, ok := r.pending[s.QueryID]
		if ok {
			delete(r.pending, s.QueryID)
		}
		r.mu.Unlock()
		if ok {
			ch <- s
		}
	}
}

func (r *Remote) fail(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.err = err
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.mu.Unlock()
	_ = r.conn.Close()
}

func (r *Remote) Send(cmd protocol.Command) error {
	r.mu.Lock()
	if r.closed {
		err := r.err
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Command:         cmd,
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := r.conn.WriteJSON(msg); err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrClosed, err))
		return ErrClosed
	}
	return nil
}

func (r *Remote) QuerySensor(target string) (protocol.SensorSample, error) {
	r.mu.Lock()
	if r.closed {
		err := r.err
		r.mu.Unlock()
		return protocol.SensorSample{}, err
	}
	r.nextID++
	id := r.nextID
	resp := make(chan protocol.SensorMsg, 1)
	r.pending[id] = resp
	r.mu.Unlock()

	msg := protocol.QueryMsg{
		Type:            protocol.TypeQuery,
		ProtocolVersion: protocol.Version,
		QueryID:         id,
		Target:          target,
	}
	r.writeMu.Lock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := r.conn.WriteJSON(msg)
	r.writeMu.Unlock()
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrClosed, err))
		return protocol.SensorSample{}, ErrClosed
	}

	timer := time.NewTimer(r.queryTimeout)
	defer timer.Stop()
	select {
	case s, ok := <-resp:
		if !ok {
			return protocol.SensorSample{}, ErrClosed
		}
		if !s.Found {
			return protocol.SensorSample{}, ErrNoSample
		}
		return protocol.SensorSample{Target: s.Target, Y: s.Y}, nil
	case <-timer.C:
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		return protocol.SensorSample{}, ErrSensorUnavailable
	}
}

func (r *Remote) Close() error {
	r.fail(ErrClosed)
	return nil
}
