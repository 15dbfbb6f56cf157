/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var (
	errHeartbeatTimeout = errors.New("heartbeat timed out")
	errClientClosed     = errors.New("client closed connection")
)

// roomCoordinator is the part of the coordinator a session talks to.
type roomCoordinator interface {
	Connect(ctx context.Context, out chan<- string) (string, error)
	Disconnect(sid string)
	ListRooms(ctx context.Context) ([]string, error)
	Join(ctx context.Context, sid, name, room string) error
	Create(ctx context.Context, sid, name string, size int) error
}

type sessionState int32

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("sessionState(%d)", int32(s))
	}
}

type session struct {
	id   string
	name string

	conn  *websocket.Conn
	coord roomCoordinator
	out   chan string

	state    *atomic.Int32
	lastPong *atomic.Time

	heartbeat time.Duration
	timeout   time.Duration

	logger *zap.Logger
}

func newSession(cfg *Config, logger *zap.Logger, coord roomCoordinator, conn *websocket.Conn) *session {
	return &session{
		conn:      conn,
		coord:     coord,
		out:       make(chan string, cfg.sendBuffer),
		state:     atomic.NewInt32(int32(stateConnecting)),
		lastPong:  atomic.NewTime(time.Now()),
		heartbeat: cfg.heartbeatInterval,
		timeout:   cfg.clientTimeout,
		logger:    logger.With(zap.String("component", "session")),
	}
}

func (s *session) State() sessionState {
	return sessionState(s.state.Load())
}

func (s *session) setState(state sessionState) {
	s.state.Store(int32(state))
	s.logger.Debug("Session state changed", zap.Stringer("state", state))
}

// serve drives the connection until the client leaves, times out or ctx ends.
func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()

	sid, err := s.coord.Connect(ctx, s.out)
	if err != nil {
		s.logger.Warn("Failed to register session", zap.Error(err))
		s.setState(stateClosed)
		return
	}

	s.id = sid
	s.logger = s.logger.With(zap.String("sid", sid))
	s.lastPong.Store(time.Now())
	s.setState(stateActive)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.heartbeatLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks ReadMessage.
		_ = s.conn.Close()
		return nil
	})

	reason := g.Wait()

	s.setState(stateClosing)
	s.coord.Disconnect(s.id)
	s.setState(stateClosed)

	s.logger.Debug("Session ended", zap.NamedError("reason", reason))
}

func (s *session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)

	s.conn.SetPongHandler(func(string) error {
		s.lastPong.Store(time.Now())
		return nil
	})

	s.conn.SetPingHandler(func(data string) error {
		s.lastPong.Store(time.Now())

		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return errClientClosed
			}
			return fmt.Errorf("read: %w", err)
		}

		if messageType != websocket.TextMessage {
			s.logger.Warn("Ignoring unexpected non-text message", zap.Int("type", messageType), zap.Int("bytes", len(data)))
			continue
		}

		if err := s.handleText(ctx, string(data)); err != nil {
			return err
		}
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (s *session) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if time.Since(s.lastPong.Load()) > s.timeout {
				s.logger.Debug("Client heartbeat failed, disconnecting")
				return errHeartbeatTimeout
			}

			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// reply queues a line for this session's own client.
func (s *session) reply(ctx context.Context, line string) error {
	select {
	case s.out <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
