package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestIdleTracker(t *testing.T) {
	t.Parallel()

	t.Run("quiet time grows with no requests", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{t: time.Unix(0, 0)}
		tr := newIdleTracker(clock.now)

		clock.advance(300 * time.Millisecond)
		require.Equal(t, 300*time.Millisecond, tr.idleFor())
	})

	t.Run("in-flight request keeps the page busy", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{t: time.Unix(0, 0)}
		tr := newIdleTracker(clock.now)

		tr.started("r1")
		clock.advance(time.Second)
		require.Zero(t, tr.idleFor())

		tr.finished("r1")
		require.Zero(t, tr.idleFor())
		clock.advance(200 * time.Millisecond)
		require.Equal(t, 200*time.Millisecond, tr.idleFor())
	})

	t.Run("unknown request ids do not count as activity", func(t *testing.T) {
		t.Parallel()
		clock := &fakeClock{t: time.Unix(0, 0)}
		tr := newIdleTracker(clock.now)

		clock.advance(time.Second)
		tr.finished("never-started")
		require.Equal(t, time.Second, tr.idleFor())
	})
}
