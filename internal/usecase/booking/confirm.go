package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BruksfildServices01/barber-booking/internal/audit"
	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/domain/slot"
	"github.com/BruksfildServices01/barber-booking/internal/metrics"
	"github.com/BruksfildServices01/barber-booking/internal/retry"
	"github.com/BruksfildServices01/barber-booking/internal/store"
)

const (
	compensateTimeout = 10 * time.Second
	releaseTimeout    = 5 * time.Second
)

// ======================================================
// INPUT / OPTIONS
// ======================================================

type ConfirmInput struct {
	Request domain.Request
	Subject domain.Subject
}

type Options struct {
	Fees      domain.FeeSchedule
	Hours     slot.OperatingHours
	Increment time.Duration
	Backoff   retry.Backoff
	Now       func() time.Time
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Fees == (domain.FeeSchedule{}) {
		o.Fees = domain.DefaultFees()
	}
	if o.Hours == (slot.OperatingHours{}) {
		o.Hours = slot.DefaultHours()
	}
	if o.Increment <= 0 {
		o.Increment = slot.DefaultIncrement
	}
	if o.Backoff.MaxAttempts == 0 && o.Backoff.BaseDelay == 0 {
		o.Backoff = retry.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ======================================================
// USE CASE
// ======================================================

// Confirm commits a booking as two copies: one under the customer and one
// under the barber. Either both are written or the caller gets a
// BookingFailure saying which half survived.
type Confirm struct {
	store  store.Store
	claims domain.SlotClaimer
	audit  *audit.Dispatcher
	opts   Options
}

func NewConfirm(
	st store.Store,
	claims domain.SlotClaimer,
	dispatcher *audit.Dispatcher,
	opts Options,
) *Confirm {
	return &Confirm{
		store:  st,
		claims: claims,
		audit:  dispatcher,
		opts:   opts.withDefaults(),
	}
}

// ======================================================
// EXECUTE
// ======================================================

func (uc *Confirm) Execute(ctx context.Context, in ConfirmInput) (*domain.Pair, error) {
	req := in.Request

	// --------------------------------------------------
	// 1. Selection (no I/O before this passes)
	// --------------------------------------------------
	if err := uc.validate(in); err != nil {
		uc.opts.Metrics.Booking("invalid-selection")
		return nil, err
	}

	// --------------------------------------------------
	// 2. Prices + both copies
	// --------------------------------------------------
	quote := uc.opts.Fees.Quote(req.ServicePrice)
	pair := domain.Build(req, in.Subject, quote)
	log := uc.opts.Logger.With("booking_id", pair.Customer.ID, "barber_id", req.BarberID, "subject_id", in.Subject.ID)

	customerLoc := domain.CustomerLocation(in.Subject.ID)
	barberLoc := domain.ScheduleLocation(req.BarberID)

	// --------------------------------------------------
	// 3. Copies from an earlier attempt
	// --------------------------------------------------
	customerDoc, customerExisted, err := uc.lookup(ctx, customerLoc, pair.Customer.ID)
	if err != nil {
		return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
			Reason: domain.ReasonPermanentStore,
			Err:    fmt.Errorf("read customer copy: %w", err),
		})
	}
	barberDoc, barberExisted, err := uc.lookup(ctx, barberLoc, pair.Barber.ID)
	if err != nil {
		return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
			Reason: domain.ReasonPermanentStore,
			Err:    fmt.Errorf("read barber copy: %w", err),
		})
	}
	if customerExisted && barberExisted {
		stored, err := storedPair(customerDoc, barberDoc)
		if err != nil {
			return nil, err
		}
		uc.opts.Metrics.Booking("already-confirmed")
		log.Info("booking already confirmed", "date", req.Date, "time", req.Time)
		return stored, nil
	}
	// a copy from an earlier attempt still occupies the slot
	preexisting := customerExisted || barberExisted

	// --------------------------------------------------
	// 4. Slot claim
	// --------------------------------------------------
	key := domain.KeyFor(req)
	claimed, err := retry.Do(ctx, uc.backoff("claim"), func(ctx context.Context) (bool, error) {
		return uc.claims.Claim(ctx, key, pair.Customer.ID)
	})
	if err != nil {
		return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
			Reason: domain.ReasonPermanentStore,
			Err:    fmt.Errorf("claim slot %s: %w", key, err),
		})
	}
	if !claimed {
		return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
			Reason: domain.ReasonSlotTaken,
			Err:    domain.ErrSlotTaken,
		})
	}
	releaseIfEmpty := func() {
		if !preexisting {
			uc.release(key, pair.Customer.ID, log)
		}
	}

	// --------------------------------------------------
	// 5. Dual write
	// --------------------------------------------------
	customerBody, err := json.Marshal(pair.Customer)
	if err != nil {
		releaseIfEmpty()
		return nil, err
	}
	barberBody, err := json.Marshal(pair.Barber)
	if err != nil {
		releaseIfEmpty()
		return nil, err
	}

	var (
		wg                     sync.WaitGroup
		customerErr, barberErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		customerErr = uc.put(ctx, customerLoc, pair.Customer.ID, customerBody)
	}()
	go func() {
		defer wg.Done()
		barberErr = uc.put(ctx, barberLoc, pair.Barber.ID, barberBody)
	}()
	wg.Wait()

	// --------------------------------------------------
	// 6. Outcome
	// --------------------------------------------------
	switch {
	case customerErr == nil && barberErr == nil:
		uc.opts.Metrics.Booking("confirmed")
		uc.audit.Dispatch(audit.Event{
			Action:    audit.ActionBookingConfirmed,
			Entity:    "booking",
			EntityID:  pair.Customer.ID,
			SubjectID: in.Subject.ID,
			Metadata: map[string]any{
				"barber_id":    req.BarberID,
				"date":         req.Date,
				"time":         req.Time,
				"service":      req.ServiceName,
				"total_price":  quote.TotalPrice,
				"price_earned": quote.PriceEarned,
			},
		})
		log.Info("booking confirmed", "date", req.Date, "time", req.Time)
		return &pair, nil

	case customerErr != nil && barberErr != nil:
		releaseIfEmpty()
		return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
			Reason: domain.ReasonPermanentStore,
			Err:    errors.Join(customerErr, barberErr),
		})
	}

	partial := &domain.PartialWriteError{
		Succeeded: domain.HalfCustomer,
		Failed:    domain.HalfBarber,
		Err:       barberErr,
	}
	writtenLoc, writtenExisted := customerLoc, customerExisted
	if customerErr != nil {
		partial.Succeeded, partial.Failed, partial.Err = domain.HalfBarber, domain.HalfCustomer, customerErr
		writtenLoc, writtenExisted = barberLoc, barberExisted
	}

	switch {
	case writtenExisted:
		// the written copy predates this request; deleting it would drop
		// a booking the caller already holds
		partial.Retained = true
		log.Warn("booking copy still unpaired", "location", writtenLoc, "error", partial.Err)
	default:
		partial.CompensateErr = uc.compensate(ctx, writtenLoc, pair.Customer.ID)
		partial.Compensated = partial.CompensateErr == nil
		if !partial.Compensated {
			log.Error("compensation failed, orphaned booking copy",
				"location", writtenLoc, "error", partial.CompensateErr)
		}
	}

	// any surviving copy still references the slot; keep the claim
	if partial.Compensated {
		releaseIfEmpty()
	}

	return nil, uc.fail(ctx, in, pair.Customer.ID, &domain.BookingFailure{
		Reason:  domain.ReasonPartialWrite,
		Partial: partial,
	})
}

// ======================================================
// HELPERS
// ======================================================

func (uc *Confirm) validate(in ConfirmInput) error {
	req := in.Request

	if in.Subject.ID == "" {
		return &domain.InvalidSelectionError{Field: "subject", Err: domain.ErrNoSubject}
	}
	if req.BarberID == "" {
		return &domain.InvalidSelectionError{Field: "barber_id", Err: errors.New("no barber selected")}
	}
	if req.ServiceName == "" {
		return &domain.InvalidSelectionError{Field: "service_name", Err: errors.New("no service selected")}
	}
	if req.ServicePrice < 0 {
		return &domain.InvalidSelectionError{Field: "service_price", Err: errors.New("negative price")}
	}
	if err := slot.Validate(req.Date, req.Time, uc.opts.Now(), uc.opts.Hours, uc.opts.Increment); err != nil {
		return &domain.InvalidSelectionError{Field: "slot", Err: err}
	}
	return nil
}

func (uc *Confirm) backoff(op string) retry.Backoff {
	b := uc.opts.Backoff
	b.Retryable = store.Retryable
	b.OnRetry = func(attempt int, delay time.Duration, err error) {
		uc.opts.Metrics.StoreRetry(op)
		uc.opts.Logger.Warn("store operation failed, retrying",
			"op", op, "attempt", attempt, "delay", delay, "error", err)
	}
	return b
}

// lookup reads one copy. A missing copy is not an error.
func (uc *Confirm) lookup(ctx context.Context, location, key string) (store.Document, bool, error) {
	doc, err := retry.Do(ctx, uc.backoff("get"), func(ctx context.Context) (store.Document, error) {
		return uc.store.Get(ctx, location, key)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Document{}, false, nil
	case err != nil:
		return store.Document{}, false, err
	}
	return doc, true, nil
}

func storedPair(customerDoc, barberDoc store.Document) (*domain.Pair, error) {
	var pair domain.Pair
	if err := customerDoc.Decode(&pair.Customer); err != nil {
		return nil, err
	}
	if err := barberDoc.Decode(&pair.Barber); err != nil {
		return nil, err
	}
	if !customerDoc.Pending() {
		t := customerDoc.CreatedAt
		pair.Customer.CreatedAt = &t
	}
	if !barberDoc.Pending() {
		t := barberDoc.CreatedAt
		pair.Barber.CreatedAt = &t
	}
	return &pair, nil
}

func (uc *Confirm) put(ctx context.Context, location, key string, body []byte) error {
	_, err := retry.Do(ctx, uc.backoff("put"), func(ctx context.Context) (store.Document, error) {
		return uc.store.Put(ctx, location, key, body)
	})
	return err
}

// compensate deletes the copy that made it. It outlives a cancelled caller.
func (uc *Confirm) compensate(ctx context.Context, location, key string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	return retry.Run(ctx, uc.backoff("delete"), func(ctx context.Context) error {
		return uc.store.Delete(ctx, location, key)
	})
}

// release runs detached from the request so a cancelled caller still frees
// the slot.
func (uc *Confirm) release(key domain.SlotKey, owner string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := uc.claims.Release(ctx, key, owner); err != nil {
		log.Warn("slot release failed", "slot", key.String(), "error", err)
	}
}

func (uc *Confirm) fail(ctx context.Context, in ConfirmInput, id string, bf *domain.BookingFailure) error {
	uc.opts.Metrics.Booking(string(bf.Reason))
	uc.opts.Logger.WarnContext(ctx, "booking failed",
		"booking_id", id, "reason", bf.Reason, "error", bf)

	uc.audit.Dispatch(audit.Event{
		Action:    audit.ActionBookingFailed,
		Entity:    "booking",
		EntityID:  id,
		SubjectID: in.Subject.ID,
		Metadata: map[string]any{
			"barber_id": in.Request.BarberID,
			"date":      in.Request.Date,
			"time":      in.Request.Time,
			"reason":    string(bf.Reason),
		},
	})
	return bf
}
