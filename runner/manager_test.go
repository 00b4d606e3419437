package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"tutorkit/handlers/memory"
	"tutorkit/handlers/turn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(t *testing.T) SessionFactory {
	return func(id string) (*Session, error) {
		ctl, err := turn.NewController(id, turn.Config{}, memory.NewState(""), turn.Ports{Responder: echoResponder{}}, nil, nil)
		require.NoError(t, err)
		return NewSession(id, ctl, nil), nil
	}
}

func TestSessionManagerIsolatesSessions(t *testing.T) {
	m := NewSessionManager(testFactory(t), 0, 0, nil)

	a, created, err := m.GetOrCreate("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, a.ID)

	b, created, err := m.GetOrCreate("b")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.GetOrCreate(a.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, a, again)

	_, err = a.Controller.Handle(context.Background(), "hola", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Controller.Memory().Len())
	assert.Zero(t, b.Controller.Memory().Len())
	assert.NotSame(t, a.Gate, b.Gate)
}

func TestSessionManagerLimit(t *testing.T) {
	m := NewSessionManager(testFactory(t), 1, 0, nil)
	_, _, err := m.GetOrCreate("a")
	require.NoError(t, err)
	_, _, err = m.GetOrCreate("b")
	assert.ErrorIs(t, err, ErrSessionLimit)

	assert.True(t, m.Remove(context.Background(), "a"))
	_, _, err = m.GetOrCreate("b")
	assert.NoError(t, err)
}

func TestSessionManagerSweep(t *testing.T) {
	m := NewSessionManager(testFactory(t), 0, time.Minute, nil)
	_, _, err := m.GetOrCreate("old")
	require.NoError(t, err)

	assert.Zero(t, m.Sweep(context.Background(), time.Now()))
	assert.Equal(t, 1, m.Sweep(context.Background(), time.Now().Add(2*time.Minute)))
	_, ok := m.Get("old")
	assert.False(t, ok)
}

func TestSessionManagerCloseAll(t *testing.T) {
	m := NewSessionManager(testFactory(t), 0, 0, nil)
	m.GetOrCreate("a")
	m.GetOrCreate("b")
	m.CloseAll(context.Background())
	assert.Zero(t, m.Len())
}

// blockingFactory builds sessions at once, except for id slow, which waits
// until release is closed.
func blockingFactory(t *testing.T, slow string, started chan<- struct{}, release <-chan struct{}, builds *atomic.Int32) SessionFactory {
	build := testFactory(t)
	return func(id string) (*Session, error) {
		builds.Add(1)
		if id == slow {
			close(started)
			<-release
		}
		return build(id)
	}
}

func TestSessionManagerSlowFactoryDoesNotBlockOtherSessions(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	var builds atomic.Int32
	m := NewSessionManager(blockingFactory(t, "slow", started, release, &builds), 0, 0, nil)

	fast, _, err := m.GetOrCreate("fast")
	require.NoError(t, err)

	slowDone := make(chan *Session, 1)
	go func() {
		s, _, _ := m.GetOrCreate("slow")
		slowDone <- s
	}()
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, created, err := m.GetOrCreate("fast")
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Same(t, fast, got)
		assert.Equal(t, 1, m.Len())
		assert.True(t, m.Remove(context.Background(), "fast"))
		assert.Zero(t, m.Sweep(context.Background(), time.Now()))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager calls stalled behind a session factory")
	}

	close(release)
	s := <-slowDone
	require.NotNil(t, s)
	assert.Equal(t, "slow", s.ID)
	assert.Equal(t, 1, m.Len())
}

func TestSessionManagerBuildsEachIDOnce(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	var builds atomic.Int32
	m := NewSessionManager(blockingFactory(t, "same", started, release, &builds), 0, 0, nil)

	const callers = 8
	results := make(chan *Session, callers)
	created := make(chan bool, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s, c, err := m.GetOrCreate("same")
		assert.NoError(t, err)
		results <- s
		created <- c
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, c, err := m.GetOrCreate("same")
			assert.NoError(t, err)
			results <- s
			created <- c
		}()
	}
	close(release)
	wg.Wait()
	close(results)
	close(created)

	assert.Equal(t, int32(1), builds.Load())
	var first *Session
	for s := range results {
		if first == nil {
			first = s
		}
		assert.Same(t, first, s)
	}
	n := 0
	for c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestSessionManagerPendingBuildHoldsSlot(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	var builds atomic.Int32
	m := NewSessionManager(blockingFactory(t, "slow", started, release, &builds), 1, 0, nil)

	errc := make(chan error, 1)
	go func() {
		_, _, err := m.GetOrCreate("slow")
		errc <- err
	}()
	<-started

	_, _, err := m.GetOrCreate("other")
	assert.ErrorIs(t, err, ErrSessionLimit)

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, 1, m.Len())
}

func TestSessionManagerFactoryErrorReachesWaiters(t *testing.T) {
	boom := errors.New("settings service down")
	m := NewSessionManager(func(string) (*Session, error) { return nil, boom }, 0, 0, nil)

	_, _, err := m.GetOrCreate("x")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, m.Len())

	// A failed build leaves nothing behind, so the next call retries.
	_, _, err = m.GetOrCreate("x")
	assert.ErrorIs(t, err, boom)
}

func TestSessionManagerSweepSkipsAttachedSessions(t *testing.T) {
	m := NewSessionManager(testFactory(t), 0, time.Minute, nil)
	s, _, err := m.GetOrCreate("live")
	require.NoError(t, err)

	detach := s.Attach()
	later := time.Now().Add(10 * time.Minute)
	assert.Zero(t, m.Sweep(context.Background(), later))
	_, ok := m.Get("live")
	assert.True(t, ok)

	detach()
	detach()
	assert.False(t, s.Connected())
	assert.Equal(t, 1, m.Sweep(context.Background(), later))
}
