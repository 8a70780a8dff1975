package modguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunDue(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1000, 0)
	s := NewScheduler()

	var ran []string
	task := func(name string) func(context.Context) {
		return func(context.Context) { ran = append(ran, name) }
	}

	s.Schedule(1, base.Add(3*time.Second), task("c"))
	s.Schedule(2, base.Add(1*time.Second), task("a"))
	s.Schedule(3, base.Add(3*time.Second), task("d"))
	s.Schedule(4, base.Add(2*time.Second), task("b"))
	assert.Equal(t, 4, s.Len())

	assert.Equal(t, 0, s.RunDue(ctx, base))
	assert.Empty(t, ran)

	assert.Equal(t, 2, s.RunDue(ctx, base.Add(2*time.Second)))
	assert.Equal(t, []string{"a", "b"}, ran)

	// equal fire times run in scheduling order
	assert.Equal(t, 2, s.RunDue(ctx, base.Add(10*time.Second)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ran)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_Cancel(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1000, 0)
	s := NewScheduler()

	var ran []ClientID
	for _, id := range []ClientID{1, 2, 1, 3} {
		s.Schedule(id, base, func(context.Context) { ran = append(ran, id) })
	}

	assert.True(t, s.Scheduled(1))
	assert.Equal(t, 2, s.Cancel(1))
	assert.Equal(t, 0, s.Cancel(1))
	assert.False(t, s.Scheduled(1))
	assert.True(t, s.Scheduled(2))

	assert.Equal(t, 2, s.RunDue(ctx, base))
	assert.ElementsMatch(t, []ClientID{2, 3}, ran)
}

func TestScheduler_TaskMaySchedule(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1000, 0)
	s := NewScheduler()

	s.Schedule(1, base, func(context.Context) {
		s.Schedule(1, base.Add(time.Second), func(context.Context) {})
	})

	assert.Equal(t, 1, s.RunDue(ctx, base))
	assert.True(t, s.Scheduled(1))
}
