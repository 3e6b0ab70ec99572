package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/livedown/internal/logging"
)

const (
	// DefaultSendBuffer is the number of messages a viewer may lag behind
	// before it is dropped.
	DefaultSendBuffer = 64

	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 54 * time.Second
)

// Viewer is one browser tab attached to the push channel. Messages queued
// with Send are written in order by a single write pump.
type Viewer struct {
	id          uuid.UUID
	connectedAt time.Time
	conn        *websocket.Conn

	mutex  sync.Mutex
	send   chan []byte
	closed bool

	pumping atomic.Bool
	done    chan struct{}
}

// NewViewer wraps an accepted connection. conn may be nil for viewers that
// are only ever read through their queue.
func NewViewer(conn *websocket.Conn, bufferSize int) *Viewer {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Viewer{
		id:          uuid.New(),
		connectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		done:        make(chan struct{}),
	}
}

func (v *Viewer) ID() uuid.UUID {
	return v.id
}

func (v *Viewer) ConnectedAt() time.Time {
	return v.connectedAt
}

// Send queues msg for this viewer only. It never blocks and reports false
// when the viewer is closed or its queue is full.
func (v *Viewer) Send(msg Message) bool {
	data, err := msg.Encode()
	if err != nil {
		return false
	}
	return v.enqueue(data) == enqueued
}

type enqueueResult int

const (
	enqueued enqueueResult = iota
	queueFull
	viewerClosed
)

func (v *Viewer) enqueue(data []byte) enqueueResult {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if v.closed {
		return viewerClosed
	}
	select {
	case v.send <- data:
		return enqueued
	default:
		return queueFull
	}
}

// closeSend stops accepting messages. Already queued messages are still
// written by the pump before it closes the connection.
func (v *Viewer) closeSend() {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if !v.closed {
		v.closed = true
		close(v.send)
	}
}

// Queue exposes the outgoing frames of a viewer created without a
// connection, for in-process consumers.
func (v *Viewer) Queue() <-chan []byte {
	return v.send
}

// Done is closed once the write pump has exited.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// wait blocks until the write pump exits. Viewers without a pump return at once.
func (v *Viewer) wait(ctx context.Context) error {
	if !v.pumping.Load() {
		return nil
	}
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startPump launches the write pump. It must be called before the viewer is
// registered so that CloseAll can wait for it.
func (v *Viewer) startPump(logger logging.Logger, writeTimeout, pingInterval time.Duration) {
	if v.conn == nil || !v.pumping.CompareAndSwap(false, true) {
		return
	}
	go v.writePump(logger, writeTimeout, pingInterval)
}

func (v *Viewer) writePump(logger logging.Logger, writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(v.done)

	for {
		select {
		case message, ok := <-v.send:
			if !ok {
				// Queue drained after closeSend
				if err := v.conn.Close(websocket.StatusNormalClosure, "server shutting down"); err != nil {
					logger.Debug(context.Background(), "Viewer close handshake failed", "error", err.Error())
				}
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := v.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				logger.Debug(context.Background(), "Viewer write failed", "error", err.Error())
				_ = v.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := v.conn.Ping(ctx)
			cancel()

			if err != nil {
				logger.Debug(context.Background(), "Viewer ping failed", "error", err.Error())
				_ = v.conn.CloseNow()
				return
			}
		}
	}
}
