/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const within = time.Second

type testClient struct {
	sid string
	out chan string
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	cfg := &Config{roomAttempts: 10}
	return NewCoordinator(cfg, zap.NewNop(), newMetrics(prometheus.NewRegistry()), seededRand())
}

func start(t *testing.T, c *Coordinator) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-c.done
	})

	go c.Run(ctx)
}

func connect(t *testing.T, c *Coordinator) *testClient {
	t.Helper()

	out := make(chan string, 32)
	sid, err := c.Connect(context.Background(), out)
	require.NoError(t, err)
	require.NotEmpty(t, sid)

	return &testClient{sid: sid, out: out}
}

// recv returns the next line sent to the client, failing the test after within.
func recv(t *testing.T, tc *testClient) string {
	t.Helper()

	select {
	case line := <-tc.out:
		return line
	case <-time.After(within):
		t.Fatalf("timed out waiting for message to %s", tc.sid)
		return ""
	}
}

// quiesce waits until every earlier message has been processed.
func quiesce(t *testing.T, c *Coordinator) []string {
	t.Helper()

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)

	return rooms
}

func recvNone(t *testing.T, c *Coordinator, tc *testClient) {
	t.Helper()

	quiesce(t, c)
	select {
	case line := <-tc.out:
		t.Fatalf("expected no message to %s, got %q", tc.sid, line)
	default:
	}
}

// createRoom has tc create a room of size and returns its name.
func createRoom(t *testing.T, c *Coordinator, tc *testClient, name string, size int) string {
	t.Helper()

	require.NoError(t, c.Create(context.Background(), tc.sid, name, size))

	created := recv(t, tc)
	require.Regexp(t, `^room \d+ created\.$`, created)
	assert.Contains(t, recv(t, tc), "/avalon/room/")

	return strings.TrimSuffix(strings.TrimPrefix(created, "room "), " created.")
}

func TestConnectIssuesDistinctIDs(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	seen := map[string]bool{}
	for range 100 {
		tc := connect(t, c)
		require.False(t, seen[tc.sid], "duplicate id %s", tc.sid)
		seen[tc.sid] = true
	}
}

func TestJoinMissingRoomDoesNotMutate(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	b := connect(t, c)
	room := createRoom(t, c, a, "ann", 5)

	require.NoError(t, c.Join(context.Background(), b.sid, "bob", "nope"))
	assert.Equal(t, "!!! room not exist", recv(t, b))

	assert.Equal(t, []string{room}, quiesce(t, c))
	recvNone(t, c, a)

	// b never sat anywhere, so joining the real room still works.
	require.NoError(t, c.Join(context.Background(), b.sid, "bob", room))
	assert.Equal(t, "joined", recv(t, b))
	assert.Equal(t, "bob connected", recv(t, a))
}

func TestCreateRejectsUnsupportedSize(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	for _, size := range []int{2, 4, 11} {
		require.NoError(t, c.Create(context.Background(), a.sid, "ann", size))
		assert.Equal(t, sizeNotSupported(size), recv(t, a))
	}

	assert.Empty(t, quiesce(t, c))
}

func TestCreateFailsWhenNoRoomNameIsFree(t *testing.T) {
	c := newTestCoordinator(t)
	c.roomAttempts = 3
	for i := range roomNameSpace {
		c.rooms[strconv.Itoa(i)] = &room{size: 5, sessions: map[string]struct{}{}}
	}
	start(t, c)

	a := connect(t, c)
	require.NoError(t, c.Create(context.Background(), a.sid, "ann", 5))
	assert.Equal(t, "!!! create room failed", recv(t, a))
	assert.Len(t, quiesce(t, c), roomNameSpace)
}

func TestFullRoomDealsAndCloses(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	names := []string{"ann", "bob", "cid", "dee", "eve"}
	clients := make([]*testClient, len(names))
	for i := range clients {
		clients[i] = connect(t, c)
	}

	room := createRoom(t, c, clients[0], names[0], len(names))
	for i := 1; i < len(names); i++ {
		require.NoError(t, c.Join(context.Background(), clients[i].sid, names[i], room))
	}

	roles := map[string]int{}
	for i, tc := range clients {
		var line string
		if i > 0 {
			assert.Equal(t, "joined", recv(t, tc))
		}
		// Connection notices for later joiners, then the fill notice.
		for {
			line = recv(t, tc)
			if !strings.HasSuffix(line, " connected") {
				break
			}
		}
		assert.Equal(t, "the room is full, dealing roles", line)

		role := recv(t, tc)
		require.Regexp(t, `^your role is \[.+\],$`, role)
		roles[role]++

		reveal := recv(t, tc)
		assert.NotEmpty(t, reveal)
		if strings.Contains(role, "Merlin") || strings.Contains(role, "Assassin") || strings.Contains(role, "Morgana") {
			assert.Contains(t, reveal, "you", "%s sees themself in %q", names[i], reveal)
		}
	}

	assert.Equal(t, map[string]int{
		"your role is [Merlin],":        1,
		"your role is [Assassin],":      1,
		"your role is [Percival],":      1,
		"your role is [Morgana],":       1,
		"your role is [Loyal Servant],": 1,
	}, roles)

	assert.Empty(t, quiesce(t, c))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.dealt))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.rooms))
}

func TestDisconnectMidRoom(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	b := connect(t, c)
	d := connect(t, c)

	room := createRoom(t, c, a, "ann", 5)
	require.NoError(t, c.Join(context.Background(), b.sid, "bob", room))
	require.NoError(t, c.Join(context.Background(), d.sid, "dee", room))
	assert.Equal(t, "joined", recv(t, b))
	assert.Equal(t, "joined", recv(t, d))
	assert.Equal(t, "bob connected", recv(t, a))
	assert.Equal(t, "dee connected", recv(t, a))
	assert.Equal(t, "dee connected", recv(t, b))

	c.Disconnect(b.sid)
	assert.Equal(t, "Someone disconnected", recv(t, a))
	assert.Equal(t, "Someone disconnected", recv(t, d))

	quiesce(t, c)
	assert.Equal(t, []roomSeat{{sid: a.sid, name: "ann"}, {sid: d.sid, name: "dee"}}, c.rooms[room].seats)

	c.Disconnect(a.sid)
	assert.Equal(t, "Someone disconnected", recv(t, d))
	assert.Equal(t, []string{room}, quiesce(t, c))

	c.Disconnect(d.sid)
	assert.Empty(t, quiesce(t, c))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.sessions))
}

func TestDisconnectTwiceIsNoop(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	b := connect(t, c)
	room := createRoom(t, c, a, "ann", 5)
	require.NoError(t, c.Join(context.Background(), b.sid, "bob", room))
	assert.Equal(t, "joined", recv(t, b))
	assert.Equal(t, "bob connected", recv(t, a))

	c.Disconnect(b.sid)
	assert.Equal(t, "Someone disconnected", recv(t, a))

	c.Disconnect(b.sid)
	recvNone(t, c, a)
	assert.Equal(t, []string{room}, quiesce(t, c))
}

func TestJoinLeavesPreviousRoom(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	b := connect(t, c)
	d := connect(t, c)

	first := createRoom(t, c, a, "ann", 5)
	second := createRoom(t, c, b, "bob", 5)
	require.NoError(t, c.Join(context.Background(), d.sid, "dee", first))
	assert.Equal(t, "joined", recv(t, d))
	assert.Equal(t, "dee connected", recv(t, a))

	require.NoError(t, c.Join(context.Background(), d.sid, "dee", second))
	assert.Equal(t, "Someone disconnected", recv(t, a))
	assert.Equal(t, "joined", recv(t, d))
	assert.Equal(t, "dee connected", recv(t, b))

	quiesce(t, c)
	assert.Len(t, c.rooms[first].seats, 1)
	assert.Len(t, c.rooms[second].seats, 2)
}

func TestJoinOwnRoomAsLastMember(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	room := createRoom(t, c, a, "ann", 5)

	require.NoError(t, c.Join(context.Background(), a.sid, "ann", room))
	assert.Equal(t, "!!! room not exist, may be deleted just now", recv(t, a))
	assert.Empty(t, quiesce(t, c))
}

func TestCreateLeavesPreviousRoom(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	a := connect(t, c)
	first := createRoom(t, c, a, "ann", 5)
	second := createRoom(t, c, a, "ann", 6)

	assert.Equal(t, []string{second}, quiesce(t, c))
	assert.NotContains(t, c.rooms, first)
}

func TestDealFailureIsBroadcast(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	c := NewCoordinator(&Config{roomAttempts: 1}, zap.New(core), newMetrics(prometheus.NewRegistry()), seededRand())

	// Rooms this small cannot be created, only planted before the loop starts.
	a := &testClient{sid: "a", out: make(chan string, 8)}
	b := &testClient{sid: "b", out: make(chan string, 8)}
	d := &testClient{sid: "d", out: make(chan string, 8)}
	for _, tc := range []*testClient{a, b, d} {
		c.sessions[tc.sid] = tc.out
	}
	c.rooms["7"] = &room{
		size:     3,
		sessions: map[string]struct{}{a.sid: {}, b.sid: {}},
		seats:    []roomSeat{{sid: a.sid, name: "ann"}, {sid: b.sid, name: "bob"}},
	}
	start(t, c)

	require.NoError(t, c.Join(context.Background(), d.sid, "dee", "7"))

	assert.Equal(t, "joined", recv(t, d))
	assert.Equal(t, "dee connected", recv(t, a))
	assert.Equal(t, "dee connected", recv(t, b))
	for _, tc := range []*testClient{a, b, d} {
		assert.Equal(t, "the room is full, dealing roles", recv(t, tc))
		assert.True(t, strings.HasPrefix(recv(t, tc), "!!! dealing failed: "))
	}

	assert.Empty(t, quiesce(t, c))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.dealFailures))
}

func TestSendToFullQueueDrops(t *testing.T) {
	c := newTestCoordinator(t)
	start(t, c)

	out := make(chan string, 1)
	sid, err := c.Connect(context.Background(), out)
	require.NoError(t, err)

	require.NoError(t, c.Create(context.Background(), sid, "ann", 5))
	quiesce(t, c)

	assert.Len(t, out, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.dropped))
}

func TestStoppedCoordinator(t *testing.T) {
	c := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	cancel()
	<-c.done

	_, err := c.Connect(context.Background(), make(chan string, 1))
	assert.ErrorIs(t, err, ErrCoordinatorStopped)

	_, err = c.ListRooms(context.Background())
	assert.ErrorIs(t, err, ErrCoordinatorStopped)
}
