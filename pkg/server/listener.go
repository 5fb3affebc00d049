package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/admission"
	"github.com/rs/zerolog"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake of one connection.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Listener admits connections before handing them to an HTTP server. Every
// connection returned by Accept holds one admission permit, released when
// the connection is closed. With a TLS config the handshake has completed
// and the connection is a *tls.Conn.
type Listener struct {
	inner            net.Listener
	ctrl             *admission.Controller
	tlsConfig        *tls.Config
	handshakeTimeout time.Duration
	logger           zerolog.Logger

	ready chan net.Conn
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	wg        sync.WaitGroup
}

// NewListener starts admitting connections from inner. tlsConfig may be nil
// for plaintext.
func NewListener(inner net.Listener, ctrl *admission.Controller, tlsConfig *tls.Config, handshakeTimeout time.Duration, logger zerolog.Logger) *Listener {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		inner:            inner,
		ctrl:             ctrl,
		tlsConfig:        tlsConfig,
		handshakeTimeout: handshakeTimeout,
		logger:           logger,
		ready:            make(chan net.Conn),
		done:             make(chan struct{}),
		ctx:              ctx,
		cancel:           cancel,
	}

	go l.acceptLoop()
	return l
}

// Accept returns the next admitted connection.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.done:
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.err != nil {
			return nil, l.err
		}
		return nil, net.ErrClosed
	}
}

// Close stops accepting. Connections still waiting for a permit or in their
// handshake are closed.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.cancel()
		err = l.inner.Close()
	})
	return err
}

// Addr returns the address of the underlying listener.
func (l *Listener) Addr() net.Addr {
	return l.inner.Addr()
}

// Wait blocks until every in-flight admission has finished.
func (l *Listener) Wait() {
	l.wg.Wait()
}

func (l *Listener) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.Close()
}

func (l *Listener) acceptLoop() {
	var delay time.Duration

	for {
		conn, err := l.inner.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}

			if isTemporary(err) {
				if delay == 0 {
					delay = minAcceptBackoff
				} else {
					delay *= 2
				}
				if delay > maxAcceptBackoff {
					delay = maxAcceptBackoff
				}

				acceptErrors.WithLabelValues("temporary").Inc()
				l.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Accept error, retrying")

				select {
				case <-time.After(delay):
				case <-l.done:
					return
				}
				continue
			}

			acceptErrors.WithLabelValues("fatal").Inc()
			l.logger.Error().Err(err).Msg("Accept failed, listener stopped")
			l.fail(err)
			return
		}

		delay = 0
		connectionsAccepted.Inc()

		l.wg.Add(1)
		go l.admit(conn)
	}
}

// admit waits for a permit, runs the TLS handshake and hands the connection
// to Accept.
func (l *Listener) admit(conn net.Conn) {
	defer l.wg.Done()

	permit, err := l.ctrl.Acquire(l.ctx)
	if err != nil {
		conn.Close()
		if errors.Is(err, admission.ErrRejected) {
			l.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Connection rejected, no admission permit")
		}
		return
	}

	if st := l.ctrl.State(); st.Saturated() {
		l.logger.Debug().
			Int64("in_use", st.InUse).
			Int64("capacity", st.Capacity).
			Int64("waiting", st.Waiting).
			Msg("Admission nearly saturated")
	}

	var ready net.Conn = &admittedConn{Conn: conn, permit: permit}

	if l.tlsConfig != nil {
		tc := tls.Server(ready, l.tlsConfig)

		ctx, cancel := context.WithTimeout(l.ctx, l.handshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()

		if err != nil {
			handshakeFailures.Inc()
			l.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("TLS handshake failed")
			tc.Close()
			return
		}

		proto := tc.ConnectionState().NegotiatedProtocol
		if proto == "" {
			proto = "none"
		}
		negotiatedProtocol.WithLabelValues(proto).Inc()
		ready = tc
	}

	select {
	case l.ready <- ready:
	case <-l.done:
		ready.Close()
	}
}

func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

// admittedConn releases its permit when closed.
type admittedConn struct {
	net.Conn
	permit *admission.Permit
}

func (c *admittedConn) Close() error {
	err := c.Conn.Close()
	c.permit.Release()
	return err
}
