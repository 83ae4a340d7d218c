package db

import (
	"context"
	"sync"
	"time"

	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/types"
)

const (
	jobChannel       = "job_changes"
	subscriberBuffer = 4
	reconnectDelay   = time.Second
)

// jobFeed holds one LISTEN connection and fans job change notifications out to subscribers.
type jobFeed struct {
	db     *DB
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]map[chan types.Job]struct{}
}

func (db *DB) jobFeed() *jobFeed {
	db.feedOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		db.feed = &jobFeed{
			db:     db,
			ctx:    ctx,
			cancel: cancel,
			subs:   make(map[string]map[chan types.Job]struct{}),
		}
		go db.feed.run()
	})
	return db.feed
}

// SubscribeJob delivers the current snapshot and then one per committed write until ctx is done.
func (db *DB) SubscribeJob(ctx context.Context, id string) (<-chan types.Job, error) {
	feed := db.jobFeed()
	ch := make(chan types.Job, subscriberBuffer)

	feed.mu.Lock()
	if feed.subs[id] == nil {
		feed.subs[id] = make(map[chan types.Job]struct{})
	}
	feed.subs[id][ch] = struct{}{}
	feed.mu.Unlock()

	job, err := db.GetJob(ctx, id)
	if err != nil {
		feed.remove(id, ch)
		return nil, err
	}
	if job != nil {
		feed.publish(job)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-feed.ctx.Done():
		}
		feed.remove(id, ch)
	}()
	return ch, nil
}

func (f *jobFeed) remove(id string, ch chan types.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id][ch]; !ok {
		return
	}
	delete(f.subs[id], ch)
	if len(f.subs[id]) == 0 {
		delete(f.subs, id)
	}
	close(ch)
}

func (f *jobFeed) stop() {
	f.cancel()
}

func (f *jobFeed) watching(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[id]) > 0
}

// publish sends a snapshot to every subscriber of the job. A full buffer drops its
// oldest snapshot.
func (f *jobFeed) publish(job *types.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[job.ID] {
		snapshot := *job.Clone()
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// run listens for notifications until the feed is stopped, reconnecting after errors.
func (f *jobFeed) run() {
	logger := observability.Logger()
	for f.ctx.Err() == nil {
		if err := f.listen(); err != nil && f.ctx.Err() == nil {
			observability.LogError(logger, "db", "jobFeed.run", "job notification listener failed", nil, err)
			select {
			case <-time.After(reconnectDelay):
			case <-f.ctx.Done():
			}
		}
	}
}

func (f *jobFeed) listen() error {
	pooled, err := f.db.pool.Acquire(f.ctx)
	if err != nil {
		return err
	}
	// A connection that has issued LISTEN must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(f.ctx, "LISTEN "+jobChannel); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(f.ctx)
		if err != nil {
			return err
		}
		if !f.watching(n.Payload) {
			continue
		}
		job, err := f.db.GetJob(f.ctx, n.Payload)
		if err != nil {
			observability.LogError(observability.Logger(), "db", "jobFeed.listen", "failed to load changed job", n.Payload, err)
			continue
		}
		if job != nil {
			f.publish(job)
		}
	}
}
