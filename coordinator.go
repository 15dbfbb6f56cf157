/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// Room names are decimal numbers below roomNameSpace.
	roomNameSpace = 1000

	inboxSize = 64
)

var ErrCoordinatorStopped = errors.New("coordinator stopped")

// Messages accepted by the coordinator loop.
type coordinatorMsg interface{ isCoordinatorMsg() }

type connectReply struct {
	sid string
	err error
}

type connectMsg struct {
	out   chan<- string
	reply chan connectReply
}

type disconnectMsg struct {
	sid string
}

type listRoomsMsg struct {
	reply chan []string
}

type joinMsg struct {
	sid  string
	name string
	room string
}

type createMsg struct {
	sid  string
	name string
	size int
}

func (connectMsg) isCoordinatorMsg()    {}
func (disconnectMsg) isCoordinatorMsg() {}
func (listRoomsMsg) isCoordinatorMsg()  {}
func (joinMsg) isCoordinatorMsg()       {}
func (createMsg) isCoordinatorMsg()     {}

type roomSeat struct {
	sid  string
	name string
}

type room struct {
	size     int
	sessions map[string]struct{}
	seats    []roomSeat
}

func newRoom(size int, sid, name string) *room {
	return &room{
		size:     size,
		sessions: map[string]struct{}{sid: {}},
		seats:    []roomSeat{{sid: sid, name: name}},
	}
}

func (r *room) add(sid, name string) {
	r.sessions[sid] = struct{}{}
	r.seats = append(r.seats, roomSeat{sid: sid, name: name})
}

// remove reports whether sid was a member.
func (r *room) remove(sid string) bool {
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	r.seats = slices.DeleteFunc(r.seats, func(s roomSeat) bool { return s.sid == sid })
	return true
}

func (r *room) full() bool {
	return len(r.sessions) == r.size
}

// Coordinator owns every session and room. All state is touched only by Run.
type Coordinator struct {
	inbox chan coordinatorMsg
	done  chan struct{}

	sessions map[string]chan<- string
	rooms    map[string]*room

	rng          *rand.Rand
	ids          io.Reader
	roomAttempts int
	invitePath   string

	logger  *zap.Logger
	metrics *metrics
}

func NewCoordinator(cfg *Config, logger *zap.Logger, m *metrics, rng *rand.Rand) *Coordinator {
	attempts := cfg.roomAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Coordinator{
		inbox:        make(chan coordinatorMsg, inboxSize),
		done:         make(chan struct{}),
		sessions:     make(map[string]chan<- string),
		rooms:        make(map[string]*room),
		rng:          rng,
		ids:          crand.Reader,
		roomAttempts: attempts,
		invitePath:   cfg.prefix + avalonPath + "/room/",
		logger:       logger.With(zap.String("component", "coordinator")),
		metrics:      m,
	}
}

// Run processes messages one at a time until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Coordinator stopping", zap.Int("sessions", len(c.sessions)), zap.Int("rooms", len(c.rooms)))
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case connectMsg:
				sid, err := c.handleConnect(msg.out)
				msg.reply <- connectReply{sid: sid, err: err}

			case disconnectMsg:
				c.handleDisconnect(msg.sid)

			case listRoomsMsg:
				msg.reply <- c.roomNames()

			case joinMsg:
				c.handleJoin(msg)

			case createMsg:
				c.handleCreate(msg)
			}

			c.metrics.observe(len(c.sessions), len(c.rooms))
		}
	}
}

func (c *Coordinator) enqueue(ctx context.Context, m coordinatorMsg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers an outbound channel and returns the new session id.
func (c *Coordinator) Connect(ctx context.Context, out chan<- string) (string, error) {
	reply := make(chan connectReply, 1)
	if err := c.enqueue(ctx, connectMsg{out: out, reply: reply}); err != nil {
		return "", err
	}

	select {
	case r := <-reply:
		return r.sid, r.err
	case <-c.done:
		return "", ErrCoordinatorStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Disconnect removes a session and its room seat. Unknown ids are ignored.
func (c *Coordinator) Disconnect(sid string) {
	_ = c.enqueue(context.Background(), disconnectMsg{sid: sid})
}

// ListRooms returns the open room names in lexicographic order.
func (c *Coordinator) ListRooms(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if err := c.enqueue(ctx, listRoomsMsg{reply: reply}); err != nil {
		return nil, err
	}

	select {
	case rooms := <-reply:
		return rooms, nil
	case <-c.done:
		return nil, ErrCoordinatorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) Join(ctx context.Context, sid, name, room string) error {
	return c.enqueue(ctx, joinMsg{sid: sid, name: name, room: room})
}

func (c *Coordinator) Create(ctx context.Context, sid, name string, size int) error {
	return c.enqueue(ctx, createMsg{sid: sid, name: name, size: size})
}

func (c *Coordinator) handleConnect(out chan<- string) (string, error) {
	for {
		id, err := uuid.NewRandomFromReader(c.ids)
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}

		sid := id.String()
		if _, taken := c.sessions[sid]; taken {
			continue
		}

		c.sessions[sid] = out
		c.logger.Debug("Session connected", zap.String("sid", sid))

		return sid, nil
	}
}

func (c *Coordinator) handleDisconnect(sid string) {
	if _, ok := c.sessions[sid]; !ok {
		return
	}

	delete(c.sessions, sid)
	c.leaveRooms(sid)

	c.logger.Debug("Session disconnected", zap.String("sid", sid))
}

func (c *Coordinator) handleJoin(msg joinMsg) {
	if _, ok := c.sessions[msg.sid]; !ok {
		c.logger.Debug("Ignoring join from unknown session", zap.String("sid", msg.sid))
		return
	}

	if _, ok := c.rooms[msg.room]; !ok {
		c.sendTo(msg.sid, "!!! room not exist")
		return
	}

	c.leaveRooms(msg.sid)

	r, ok := c.rooms[msg.room]
	if !ok {
		c.sendTo(msg.sid, "!!! room not exist, may be deleted just now")
		return
	}

	r.add(msg.sid, msg.name)

	c.broadcast(msg.room, msg.name+" connected", msg.sid)
	c.sendTo(msg.sid, "joined")

	c.logger.Debug("Session joined room",
		zap.String("sid", msg.sid),
		zap.String("room", msg.room),
		zap.Int("seats", len(r.seats)),
		zap.Int("size", r.size),
	)

	if r.full() {
		c.broadcast(msg.room, "the room is full, dealing roles", "")
		c.deal(msg.room, r)
		delete(c.rooms, msg.room)
	}
}

func (c *Coordinator) handleCreate(msg createMsg) {
	if _, ok := c.sessions[msg.sid]; !ok {
		c.logger.Debug("Ignoring create from unknown session", zap.String("sid", msg.sid))
		return
	}

	if msg.size < minPlayers || msg.size > maxPlayers {
		c.sendTo(msg.sid, sizeNotSupported(msg.size))
		return
	}

	name, ok := c.newRoomName()
	if !ok {
		c.sendTo(msg.sid, "!!! create room failed")
		return
	}

	c.leaveRooms(msg.sid)

	c.rooms[name] = newRoom(msg.size, msg.sid, msg.name)

	c.sendTo(msg.sid, fmt.Sprintf("room %s created.", name))
	c.sendTo(msg.sid, "share the room number with your friends, or send them "+c.invitePath+name)

	c.logger.Debug("Room created", zap.String("sid", msg.sid), zap.String("room", name), zap.Int("size", msg.size))
}

func (c *Coordinator) newRoomName() (string, bool) {
	for range c.roomAttempts {
		name := strconv.Itoa(c.rng.IntN(roomNameSpace))
		if _, taken := c.rooms[name]; !taken {
			return name, true
		}
	}

	c.logger.Warn("No free room name found", zap.Int("attempts", c.roomAttempts), zap.Int("rooms", len(c.rooms)))

	return "", false
}

// leaveRooms removes sid from every room it sits in, drops emptied rooms and tells
// the remaining members.
func (c *Coordinator) leaveRooms(sid string) {
	var left []string

	for name, r := range c.rooms {
		if !r.remove(sid) {
			continue
		}

		if len(r.sessions) == 0 {
			delete(c.rooms, name)
			c.logger.Debug("Room closed", zap.String("room", name))
			continue
		}

		left = append(left, name)
	}

	for _, name := range left {
		c.broadcast(name, "Someone disconnected", sid)
	}
}

func (c *Coordinator) deal(name string, r *room) {
	names := lo.Map(r.seats, func(s roomSeat, _ int) string { return s.name })

	assignment, err := Assign(c.rng, names)
	if err != nil {
		c.logger.Error("Failed to deal roles for full room", zap.String("room", name), zap.Int("seats", len(names)), zap.Error(err))
		c.metrics.dealFailed()
		c.broadcast(name, "!!! dealing failed: "+err.Error(), "")
		return
	}

	for seat, p := range assignment.Players {
		sid := r.seats[seat].sid
		c.sendTo(sid, fmt.Sprintf("your role is [%s],", p.Role))
		c.sendTo(sid, assignment.View(p.Role).TextFor(seat))
	}

	c.metrics.roomDealt()
	c.logger.Info("Roles dealt", zap.String("room", name), zap.Int("players", len(names)))
}

func (c *Coordinator) roomNames() []string {
	names := lo.Keys(c.rooms)
	slices.Sort(names)

	return names
}

// sendTo never blocks: a full session queue loses the line.
func (c *Coordinator) sendTo(sid, text string) {
	out, ok := c.sessions[sid]
	if !ok {
		return
	}

	select {
	case out <- text:
	default:
		c.logger.Warn("Dropped message, session outgoing queue full", zap.String("sid", sid))
		c.metrics.messageDropped()
	}
}

func (c *Coordinator) broadcast(name, text, skip string) {
	r, ok := c.rooms[name]
	if !ok {
		return
	}

	for _, s := range r.seats {
		if s.sid != skip {
			c.sendTo(s.sid, text)
		}
	}
}

func sizeNotSupported(size int) string {
	return fmt.Sprintf("!!! room size %d is not supported. it should be in range %d-%d", size, minPlayers, maxPlayers)
}
