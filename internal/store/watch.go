package store

import (
	"context"
	"sync"
)

// Loader returns the current matching document set for a location.
type Loader func(ctx context.Context) ([]Document, error)

type watch struct {
	out    chan []Document
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Watch builds a Subscription that delivers load() once immediately and
// again after every feed notification for location. A load failure ends
// the subscription with that error.
func Watch(ctx context.Context, feed ChangeFeed, location string, load Loader) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	changes, stop, err := feed.Listen(ctx, location)
	if err != nil {
		cancel()
		return nil, err
	}

	w := &watch{
		out:    make(chan []Document, 1),
		cancel: cancel,
	}

	go w.run(ctx, changes, stop, load)
	return w, nil
}

func (w *watch) run(ctx context.Context, changes <-chan struct{}, stop func(), load Loader) {
	defer close(w.out)
	defer stop()

	deliver := func() bool {
		docs, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.setErr(err)
			}
			return false
		}
		// latest snapshot wins when the reader is slow
		select {
		case <-w.out:
		default:
		}
		select {
		case w.out <- docs:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !deliver() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					w.setErr(ErrFeedClosed)
				}
				return
			}
			if !deliver() {
				return
			}
		}
	}
}

func (w *watch) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *watch) Snapshots() <-chan []Document {
	return w.out
}

func (w *watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *watch) Close() {
	w.cancel()
}
