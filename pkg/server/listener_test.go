package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/admission"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acceptResult struct {
	conn net.Conn
	err  error
}

// scriptedListener returns queued accept results.
type scriptedListener struct {
	steps  chan acceptResult
	closed chan struct{}
}

func newScriptedListener() *scriptedListener {
	return &scriptedListener{
		steps:  make(chan acceptResult, 8),
		closed: make(chan struct{}),
	}
}

func (s *scriptedListener) Accept() (net.Conn, error) {
	select {
	case r := <-s.steps:
		return r.conn, r.err
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

func (s *scriptedListener) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func (s *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "too many open files" }
func (temporaryError) Temporary() bool { return true }
func (temporaryError) Timeout() bool   { return false }

func TestListener_TemporaryErrorsAreRetried(t *testing.T) {
	ctrl, err := admission.New(4)
	require.NoError(t, err)

	inner := newScriptedListener()
	l := NewListener(inner, ctrl, nil, 0, zerolog.Nop())
	defer l.Close()

	server, client := net.Pipe()
	defer client.Close()

	inner.steps <- acceptResult{err: temporaryError{}}
	inner.steps <- acceptResult{err: temporaryError{}}
	inner.steps <- acceptResult{conn: server}

	conn, err := l.Accept()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ctrl.State().InUse)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, int64(0), ctrl.State().InUse, "permit released exactly once")
}

func TestListener_PermanentErrorIsReturned(t *testing.T) {
	ctrl, err := admission.New(4)
	require.NoError(t, err)

	inner := newScriptedListener()
	l := NewListener(inner, ctrl, nil, 0, zerolog.Nop())

	boom := errors.New("boom")
	inner.steps <- acceptResult{err: boom}

	_, err = l.Accept()
	assert.ErrorIs(t, err, boom)

	_, err = l.Accept()
	assert.ErrorIs(t, err, boom, "listener stays failed")
}

func TestListener_CloseReleasesWaiters(t *testing.T) {
	ctrl, err := admission.New(1)
	require.NoError(t, err)

	held, ok := ctrl.TryAcquire()
	require.True(t, ok)
	defer held.Release()

	inner := newScriptedListener()
	l := NewListener(inner, ctrl, nil, 0, zerolog.Nop())

	server, client := net.Pipe()
	defer client.Close()
	inner.steps <- acceptResult{conn: server}

	require.Eventually(t, func() bool { return ctrl.State().Waiting == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.Close())
	l.Wait()

	assert.Equal(t, int64(0), ctrl.State().Waiting)
	assert.Equal(t, int64(1), ctrl.State().InUse)

	_, err = l.Accept()
	assert.ErrorIs(t, err, net.ErrClosed)
}
