package upstream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const DefaultBufferSize = 32 * 1024

// RelayOptions tune Pipe. Observe, when set, is invoked per relayed chunk;
// fromA reports the direction of travel.
type RelayOptions struct {
	IdleTimeout time.Duration
	BufferSize  int
	Observe     func(fromA bool, n int)
}

// Pipe relays bytes both ways between a and b until one side errors or ctx is
// cancelled, then closes both ends so in-flight reads unblock. io.EOF counts
// as a clean shutdown.
func Pipe(ctx context.Context, a, b net.Conn, opts RelayOptions) error {
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = a.Close()
			_ = b.Close()
		})
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			closeBoth()
		case <-watchDone:
		}
	}()

	errCh := make(chan error, 2)
	relay := func(dst, src net.Conn, fromA bool) {
		var observe func(int)
		if opts.Observe != nil {
			observe = func(n int) { opts.Observe(fromA, n) }
		}
		err := copyIdle(dst, src, opts.IdleTimeout, make([]byte, bufSize), observe)
		halfClose(dst)
		errCh <- err
	}
	go relay(b, a, true)
	go relay(a, b, false)

	firstErr := <-errCh
	secondErr := <-errCh
	closeBoth()

	if firstErr != nil && !errors.Is(firstErr, io.EOF) {
		return firstErr
	}
	if secondErr != nil && !errors.Is(secondErr, io.EOF) {
		return secondErr
	}
	return nil
}

// copyIdle copies src to dst, refreshing idle deadlines per chunk. A zero
// idleTimeout copies without deadlines.
func copyIdle(dst, src net.Conn, idleTimeout time.Duration, buf []byte, observe func(n int)) error {
	for {
		if idleTimeout > 0 {
			if err := src.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
				return err
			}
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if idleTimeout > 0 {
				if err := dst.SetWriteDeadline(time.Now().Add(idleTimeout)); err != nil {
					return err
				}
			}
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			if observe != nil {
				observe(n)
			}
		}
		if readErr != nil {
			return readErr
		}
	}
}

// halfClose signals EOF to the peer when the conn supports it.
func halfClose(conn net.Conn) {
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = closer.CloseWrite()
	}
}
