package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRegistry_JoinLeaveLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Connect("a")
	r.Connect("b")

	require.NoError(t, r.Join("a", "t1"))
	require.NoError(t, r.Join("a", "t1")) // no duplicates
	require.NoError(t, r.Join("b", "t1"))
	require.NoError(t, r.Join("a", "t2"))

	assert.ElementsMatch(t, []string{"a", "b"}, r.RoomMembers("t1"))
	assert.ElementsMatch(t, []string{"a"}, r.RoomMembers("t2"))
	rooms, err := r.Rooms("a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, rooms)

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.TotalRooms)
	assert.Equal(t, map[string]int{"task_t1": 2, "task_t2": 1}, stats.Rooms)

	require.NoError(t, r.Leave("a", "t2"))
	assert.Empty(t, r.RoomMembers("t2"))
	assert.NotContains(t, r.Stats().Rooms, "task_t2")
	assert.Equal(t, 1, r.Stats().TotalRooms)

	// leaving a room twice is harmless
	require.NoError(t, r.Leave("a", "t2"))
}

func TestRegistry_BalancedJoinsAndLeaves(t *testing.T) {
	tests := []struct {
		name   string
		others []string
	}{
		{name: "only member"},
		{name: "with other members", others: []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Connect("a")
			for _, o := range tt.others {
				r.Connect(o)
				require.NoError(t, r.Join(o, "room"))
			}

			for range 3 {
				require.NoError(t, r.Join("a", "room"))
			}
			for range 3 {
				require.NoError(t, r.Leave("a", "room"))
			}

			assert.NotContains(t, r.RoomMembers("room"), "a")
			if len(tt.others) == 0 {
				assert.NotContains(t, r.Stats().Rooms, RoomName("room"))
				assert.Equal(t, 0, r.Stats().TotalRooms)
			} else {
				assert.Equal(t, len(tt.others), r.Stats().Rooms[RoomName("room")])
			}
		})
	}
}

func TestRegistry_DisconnectCleansRooms(t *testing.T) {
	r := NewRegistry()
	r.Connect("a")
	r.Connect("b")
	require.NoError(t, r.Join("a", "t1"))
	require.NoError(t, r.Join("a", "t2"))
	require.NoError(t, r.Join("b", "t2"))

	r.Disconnect("a")

	assert.False(t, r.IsConnected("a"))
	assert.Empty(t, r.RoomMembers("t1"))
	assert.Equal(t, []string{"b"}, r.RoomMembers("t2"))
	assert.Equal(t, Stats{TotalConnections: 1, TotalRooms: 1, Rooms: map[string]int{"task_t2": 1}}, r.Stats())

	// unknown id
	r.Disconnect("ghost")
}

func TestRegistry_UnknownConnection(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Join("ghost", "t1"), ErrConnectionNotFound)
	assert.ErrorIs(t, r.Leave("ghost", "t1"), ErrConnectionNotFound)
	_, err := r.Rooms("ghost")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.Equal(t, 0, r.Stats().TotalRooms)

	r.Connect("a")
	r.Disconnect("a")
	assert.ErrorIs(t, r.Join("a", "t1"), ErrConnectionNotFound)
}

func TestRegistry_ReconnectResetsMemberships(t *testing.T) {
	r := NewRegistry()
	r.Connect("a")
	require.NoError(t, r.Join("a", "t1"))

	r.Connect("a")

	rooms, err := r.Rooms("a")
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Empty(t, r.RoomMembers("t1"))
	assert.Equal(t, 1, r.Stats().TotalConnections)
	assert.Equal(t, 0, r.Stats().TotalRooms)
}

func TestRegistry_RoomMembersIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Connect("a")
	require.NoError(t, r.Join("a", "t1"))

	members := r.RoomMembers("t1")
	members[0] = "mutated"
	assert.Equal(t, []string{"a"}, r.RoomMembers("t1"))
}

func TestRegistry_ConcurrentMutations(t *testing.T) {
	r := NewRegistry()
	const workers = 32

	var g errgroup.Group
	for i := range workers {
		id := fmt.Sprintf("c%d", i)
		g.Go(func() error {
			r.Connect(id)
			for j := range 50 {
				room := fmt.Sprintf("t%d", j%5)
				if err := r.Join(id, room); err != nil {
					return err
				}
				_ = r.Stats()
				_ = r.RoomMembers(room)
				if j%2 == 0 {
					if err := r.Leave(id, room); err != nil {
						return err
					}
				}
			}
			r.Disconnect(id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, Stats{TotalConnections: 0, TotalRooms: 0, Rooms: map[string]int{}}, r.Stats())
}
