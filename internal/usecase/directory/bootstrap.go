package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BruksfildServices01/barber-booking/internal/audit"
	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/metrics"
	"github.com/BruksfildServices01/barber-booking/internal/retry"
	"github.com/BruksfildServices01/barber-booking/internal/store"
)

// SeedFailure lists the barbers that could not be written.
type SeedFailure struct {
	Failed []string
	Err    error
}

func (e *SeedFailure) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("directory: seeding failed: %v", e.Err)
	}
	return fmt.Sprintf("directory: seeding failed for %s: %v", strings.Join(e.Failed, ", "), e.Err)
}

func (e *SeedFailure) Unwrap() error {
	return e.Err
}

// ======================================================
// USE CASE
// ======================================================

// Bootstrapper writes the reference barbers into an empty directory, at
// most once per process.
type Bootstrapper struct {
	store   store.Store
	audit   *audit.Dispatcher
	backoff retry.Backoff
	log     *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	done bool
}

func NewBootstrapper(
	st store.Store,
	dispatcher *audit.Dispatcher,
	backoff retry.Backoff,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		store:   st,
		audit:   dispatcher,
		backoff: backoff,
		log:     logger,
		metrics: m,
	}
}

// Done reports whether a run has already succeeded.
func (b *Bootstrapper) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// EnsureSeeded seeds the directory if it is empty. Concurrent callers are
// serialized; a failed run leaves the bootstrapper ready to try again.
func (b *Bootstrapper) EnsureSeeded(ctx context.Context, refs []domain.Barber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil
	}

	// --------------------------------------------------
	// 1. Already populated?
	// --------------------------------------------------
	existing, err := retry.Do(ctx, b.policy("get_all"), func(ctx context.Context) ([]store.Document, error) {
		return b.store.GetAll(ctx, domain.BarbersLocation, nil)
	})
	if err != nil {
		return &SeedFailure{Err: fmt.Errorf("read directory: %w", err)}
	}
	if len(existing) > 0 {
		b.log.Info("directory already populated", "barbers", len(existing))
		b.done = true
		return nil
	}

	// --------------------------------------------------
	// 2. Write every reference barber
	// --------------------------------------------------
	var (
		failedMu sync.Mutex
		failed   []string
	)

	// siblings keep going when one barber fails so Failed is complete
	var g errgroup.Group
	for _, ref := range refs {
		g.Go(func() error {
			if err := b.write(ctx, ref); err != nil {
				failedMu.Lock()
				failed = append(failed, ref.ID)
				failedMu.Unlock()
				return fmt.Errorf("barber %s: %w", ref.ID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		sort.Strings(failed)
		b.log.Error("directory seeding failed", "failed", failed, "error", err)
		return &SeedFailure{Failed: failed, Err: err}
	}

	b.done = true
	b.log.Info("directory seeded", "barbers", len(refs))
	b.audit.Dispatch(audit.Event{
		Action:   audit.ActionDirectorySeeded,
		Entity:   "directory",
		Metadata: map[string]any{"barbers": len(refs)},
	})
	return nil
}

func (b *Bootstrapper) write(ctx context.Context, ref domain.Barber) error {
	if ref.ID == "" {
		return fmt.Errorf("%w: reference barber without id", store.ErrPermanent)
	}
	body, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	_, err = retry.Do(ctx, b.policy("put"), func(ctx context.Context) (store.Document, error) {
		return b.store.Put(ctx, domain.BarbersLocation, ref.ID, body)
	})
	return err
}

func (b *Bootstrapper) policy(op string) retry.Backoff {
	p := b.backoff
	p.Retryable = store.Retryable
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		b.metrics.StoreRetry(op)
		b.log.Warn("directory store operation failed, retrying",
			"op", op, "attempt", attempt, "delay", delay, "error", err)
	}
	return p
}
