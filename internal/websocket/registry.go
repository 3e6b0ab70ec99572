// Package websocket implements the push channel between a livedown server and
// its viewers: the registry of attached viewers, their write pumps, the HTTP
// handler accepting new connections and the wire message format.
//
// Invariants:
//   - every registered viewer has a running write pump or no connection at all
//   - a viewer leaves the registry as soon as its connection is gone
//   - messages reach a single viewer in the order they were queued
package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
)

// Registry tracks the viewers attached to the push channel and fans
// broadcasts out to all of them.
type Registry struct {
	mutex   sync.RWMutex
	viewers map[uuid.UUID]*Viewer
	closed  bool

	logger  logging.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(logger logging.Logger, metrics *monitoring.Metrics) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		viewers: make(map[uuid.UUID]*Viewer),
		logger:  logger.WithComponent("websocket"),
		metrics: metrics,
	}
}

// Register adds v to the broadcast set. It fails once CloseAll has run.
func (r *Registry) Register(v *Viewer) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return errors.NewLifecycleError(errors.ErrCodeShutdown, "viewer registry is closed")
	}
	r.viewers[v.ID()] = v
	count := len(r.viewers)
	r.mutex.Unlock()

	r.metrics.ViewerAttached()
	r.logger.Debug(context.Background(), "Viewer connected", "viewer", v.ID().String(), "viewers", count)
	return nil
}

// Unregister removes v and stops its write pump. Unknown viewers are ignored.
func (r *Registry) Unregister(v *Viewer) {
	r.mutex.Lock()
	_, exists := r.viewers[v.ID()]
	if exists {
		delete(r.viewers, v.ID())
	}
	count := len(r.viewers)
	r.mutex.Unlock()

	if !exists {
		return
	}
	v.closeSend()
	r.metrics.ViewerDetached()
	r.logger.Debug(context.Background(), "Viewer disconnected", "viewer", v.ID().String(), "viewers", count)
}

// Broadcast queues msg for every registered viewer and returns how many
// accepted it. A viewer whose queue is full is dropped; one that is already
// closed is skipped.
func (r *Registry) Broadcast(msg Message) int {
	data, err := msg.Encode()
	if err != nil {
		r.logger.Error(context.Background(), err, "Failed to marshal broadcast message", "type", msg.Type)
		return 0
	}

	r.mutex.RLock()
	viewers := make([]*Viewer, 0, len(r.viewers))
	for _, v := range r.viewers {
		viewers = append(viewers, v)
	}
	r.mutex.RUnlock()

	delivered := 0
	for _, v := range viewers {
		switch v.enqueue(data) {
		case enqueued:
			delivered++
		case queueFull:
			r.logger.Warn(context.Background(), nil, "Viewer too slow, dropping it", "viewer", v.ID().String())
			r.metrics.SlowViewerDropped()
			r.Unregister(v)
		case viewerClosed:
			// Closed between the snapshot and the send, usually by CloseAll
			r.Unregister(v)
		}
	}

	r.metrics.MessageBroadcast(msg.Type, delivered)
	return delivered
}

// Len returns the number of registered viewers.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.viewers)
}

// Closed reports whether CloseAll has been called.
func (r *Registry) Closed() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.closed
}

// CloseAll detaches every viewer and waits until their queued messages have
// been written and the connections closed, or ctx expires. Later calls to
// Register fail.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mutex.Lock()
	r.closed = true
	viewers := make([]*Viewer, 0, len(r.viewers))
	for id, v := range r.viewers {
		viewers = append(viewers, v)
		delete(r.viewers, id)
	}
	r.mutex.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range viewers {
		v.closeSend()
		r.metrics.ViewerDetached()
		g.Go(func() error {
			return v.wait(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn(ctx, err, "Viewers did not finish closing", "viewers", len(viewers))
		return errors.Wrap(err, errors.ErrorTypeLifecycle, errors.ErrCodeShutdown, "viewers did not close in time")
	}

	if len(viewers) > 0 {
		r.logger.Debug(ctx, "Closed all viewers", "viewers", len(viewers))
	}
	return nil
}
