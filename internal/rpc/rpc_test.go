package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

func TestTracker_ReplyRunsOnce(t *testing.T) {
	tr := NewTracker(time.Second)
	now := time.Unix(1000, 0)

	var replies, timeouts int
	id := tr.Start("party.update", now, func(types.Reply) { replies++ }, func() { timeouts++ })
	require.NotEmpty(t, id)

	assert.True(t, tr.Resolve(id, types.Reply{Result: types.ResultOK}))
	assert.False(t, tr.Resolve(id, types.Reply{Result: types.ResultOK}))
	assert.Equal(t, 0, tr.Expire(now.Add(time.Hour)))

	assert.Equal(t, 1, replies)
	assert.Equal(t, 0, timeouts)
}

func TestTracker_Expire(t *testing.T) {
	tr := NewTracker(10 * time.Second)
	now := time.Unix(1000, 0)

	var timedOut []string
	a := tr.Start("a", now, nil, func() { timedOut = append(timedOut, "a") })
	tr.Start("b", now.Add(5*time.Second), nil, func() { timedOut = append(timedOut, "b") })

	assert.Equal(t, 0, tr.Expire(now.Add(9*time.Second)))
	assert.Equal(t, 1, tr.Expire(now.Add(10*time.Second)))
	assert.Equal(t, []string{"a"}, timedOut)

	// late reply for an expired call is dropped
	assert.False(t, tr.Resolve(a, types.Reply{Result: types.ResultOK}))
	assert.Equal(t, 1, tr.Pending())
}

func TestTracker_IDsAreUnique(t *testing.T) {
	tr := NewTracker(0)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := tr.Start("x", time.Now(), nil, nil)
		assert.False(t, seen[id])
		seen[id] = true
	}
	tr.Cancel(tr.Outstanding()[0].ID)
	assert.Equal(t, 99, tr.Pending())
}
