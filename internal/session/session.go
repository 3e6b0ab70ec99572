// Package session ties one watched document to its viewers.
//
// A Session owns the Watcher for its document. Each run of a Session has a
// single consumer loop that receives change events, read results and viewer
// joins, so broadcasts and the targeted replay to joining viewers are
// serialized. Reads run concurrently and are tagged with a change sequence
// number; a result older than the last one applied is discarded.
package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/logging"
	"github.com/conneroisu/livedown/internal/monitoring"
	"github.com/conneroisu/livedown/internal/renderer"
	"github.com/conneroisu/livedown/internal/watcher"
	"github.com/conneroisu/livedown/internal/websocket"
)

// ReadFunc loads the document contents.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

func readFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

type options struct {
	debounce time.Duration
	clock    clockwork.Clock
	metrics  *monitoring.Metrics
	read     ReadFunc
}

// Option configures a Session.
type Option func(*options)

// WithDebounce sets the watcher quiet period.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReadFunc replaces os.ReadFile for loading the document.
func WithReadFunc(fn ReadFunc) Option {
	return func(o *options) { o.read = fn }
}

// Session watches one document and keeps the registry's viewers in sync.
type Session struct {
	renderer *renderer.Renderer
	registry *websocket.Registry
	logger   logging.Logger
	opts     options

	mutex   sync.Mutex
	current *run
	stopped bool

	doc atomic.Pointer[Document]
}

// run is one watch of one path. It is replaced when the session is retargeted.
type run struct {
	path    string
	watcher *watcher.Watcher
	cancel  context.CancelFunc
	joins   chan joinRequest
	done    chan struct{}
	reads   sync.WaitGroup
}

type joinRequest struct {
	viewer *websocket.Viewer
	reply  chan error
}

type readResult struct {
	seq        uint64
	raw        string
	html       string
	renderTime time.Duration
	err        error
}

// New creates an idle Session.
func New(r *renderer.Renderer, registry *websocket.Registry, logger logging.Logger, opts ...Option) *Session {
	o := options{
		debounce: watcher.DefaultDebounce,
		clock:    clockwork.NewRealClock(),
		read:     readFile,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Session{
		renderer: r,
		registry: registry,
		logger:   logger.WithComponent("session"),
		opts:     o,
	}
}

// Start watches path and renders it once before returning. A failed first
// read is logged; viewers then get the title only until a read succeeds.
// Calling Start on a running Session retargets it: the previous watch is
// closed before the new one is opened.
func (s *Session) Start(ctx context.Context, path string) error {
	if path == "" {
		return errors.ErrMissingPath
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeDocumentUnavailable, "cannot resolve document path").WithPath(path)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return errors.ErrSessionStopped
	}

	retarget := s.current != nil
	if retarget {
		if err := s.retire(s.current); err != nil {
			s.logger.Warn(ctx, err, "Failed to close previous watcher", "path", s.current.path)
		}
		s.current = nil
	}

	w, err := watcher.Open(abs,
		watcher.WithDebounce(s.opts.debounce),
		watcher.WithClock(s.opts.clock),
		watcher.WithLogger(s.logger),
		watcher.WithMetrics(s.opts.metrics),
	)
	if err != nil {
		return err
	}

	// The first read is sequence 1; watcher events continue from there
	doc := emptyDocument(abs)
	res := s.readAndRender(ctx, abs, 1)
	if res.err != nil {
		s.opts.metrics.ReadFailed()
		s.logger.Warn(ctx, errors.ReadError(abs, res.err), "Initial read failed, waiting for changes")
	} else {
		s.opts.metrics.DocumentRendered(res.renderTime)
		doc = doc.withContent(res.raw, res.html, res.seq, s.opts.clock.Now())
	}
	s.doc.Store(doc)

	if retarget {
		s.registry.Broadcast(websocket.TitleMessage(doc.Title))
		if doc.Rendered {
			s.registry.Broadcast(websocket.ContentMessage(doc.HTML))
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		path:    abs,
		watcher: w,
		cancel:  cancel,
		joins:   make(chan joinRequest),
		done:    make(chan struct{}),
	}
	s.current = r
	go s.loop(runCtx, r, doc.Seq, 1)

	s.logger.Info(ctx, "Watching document", "path", abs, "rendered", doc.Rendered)
	return nil
}

// Stop closes the watcher and waits for the consumer loop to exit. No read
// result is applied after Stop returns. Stopping twice is a no-op.
func (s *Session) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	r := s.current
	s.current = nil
	if r == nil {
		return nil
	}

	err := s.retire(r)
	s.logger.Info(context.Background(), "Session stopped", "path", r.path)
	return err
}

// retire cancels a run, closes its watcher and waits for its goroutines.
func (s *Session) retire(r *run) error {
	r.cancel()
	err := r.watcher.Close()
	<-r.done
	r.reads.Wait()
	return err
}

// Attach registers v and replays the current title and content to it alone.
func (s *Session) Attach(ctx context.Context, v *websocket.Viewer) error {
	var last *run
	for {
		s.mutex.Lock()
		r, stopped := s.current, s.stopped
		s.mutex.Unlock()

		if stopped || r == nil || r == last {
			return errors.ErrSessionStopped
		}
		last = r

		req := joinRequest{viewer: v, reply: make(chan error, 1)}
		select {
		case r.joins <- req:
			return <-req.reply
		case <-r.done:
			// Retargeted or stopped while waiting; look again
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Detach removes v from the broadcast set.
func (s *Session) Detach(v *websocket.Viewer) {
	s.registry.Unregister(v)
}

// Document returns the current snapshot. The zero Document is returned
// before the first Start.
func (s *Session) Document() Document {
	if doc := s.doc.Load(); doc != nil {
		return *doc
	}
	return Document{}
}

// Running reports whether the session is watching a document.
func (s *Session) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current != nil
}

func (s *Session) loop(ctx context.Context, r *run, applied, issued uint64) {
	defer close(r.done)

	results := make(chan readResult)
	events := r.watcher.Events()
	watchErrors := r.watcher.Errors()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			issued++
			s.logger.Debug(ctx, "Document changed",
				"type", event.Type.String(),
				"coalesced", event.Coalesced,
				"seq", issued)

			r.reads.Add(1)
			go func(seq uint64) {
				defer r.reads.Done()
				res := s.readAndRender(ctx, r.path, seq)
				select {
				case results <- res:
				case <-ctx.Done():
				}
			}(issued)

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			s.logger.Warn(ctx, err, "Watcher reported an error, still watching")

		case res := <-results:
			applied = s.apply(ctx, r, res, applied)

		case req := <-r.joins:
			req.reply <- s.join(req.viewer)
		}
	}
}

// apply stores a successful, current read and broadcasts it. It returns the
// new applied sequence number.
func (s *Session) apply(ctx context.Context, r *run, res readResult, applied uint64) uint64 {
	if res.err != nil {
		s.opts.metrics.ReadFailed()
		s.logger.Warn(ctx, errors.ReadError(r.path, res.err), "Failed to read document, keeping previous render", "seq", res.seq)
		return applied
	}
	if res.seq <= applied {
		s.opts.metrics.StaleReadDiscarded()
		s.logger.Debug(ctx, "Discarding stale read", "seq", res.seq, "applied", applied)
		return applied
	}

	doc := s.doc.Load().withContent(res.raw, res.html, res.seq, s.opts.clock.Now())
	s.doc.Store(doc)
	s.opts.metrics.DocumentRendered(res.renderTime)

	delivered := s.registry.Broadcast(websocket.ContentMessage(doc.HTML))
	s.logger.Debug(ctx, "Broadcast content", "seq", res.seq, "viewers", delivered)
	return res.seq
}

func (s *Session) join(v *websocket.Viewer) error {
	if err := s.registry.Register(v); err != nil {
		return err
	}

	doc := s.doc.Load()
	v.Send(websocket.TitleMessage(doc.Title))
	if doc.Rendered {
		v.Send(websocket.ContentMessage(doc.HTML))
	}
	return nil
}

func (s *Session) readAndRender(ctx context.Context, path string, seq uint64) readResult {
	data, err := s.opts.read(ctx, path)
	if err != nil {
		return readResult{seq: seq, err: err}
	}

	perf := logging.StartOperation(s.logger, "render")
	raw := string(data)
	html := s.renderer.Render(raw)
	return readResult{
		seq:        seq,
		raw:        raw,
		html:       html,
		renderTime: perf.End(ctx, "seq", seq, "bytes", len(data)),
	}
}
