package slot

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BruksfildServices01/barber-booking/internal/httperr"
)

const (
	TimeFormat = "15:04"
	DateFormat = "2006-01-02"

	DefaultOpen      = "09:00"
	DefaultClose     = "18:00"
	DefaultIncrement = 30 * time.Minute

	// DefaultAvailabilityRate is the share of slots the random policy offers.
	DefaultAvailabilityRate = 0.7
)

// ===============================
// Types
// ===============================

type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// OperatingHours is a same-day window, "HH:MM" on both ends.
type OperatingHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

func DefaultHours() OperatingHours {
	return OperatingHours{Open: DefaultOpen, Close: DefaultClose}
}

// AvailabilityPolicy decides whether one slot can be booked.
type AvailabilityPolicy interface {
	Available(date time.Time, hm string) bool
}

type PolicyFunc func(date time.Time, hm string) bool

func (f PolicyFunc) Available(date time.Time, hm string) bool { return f(date, hm) }

// AlwaysAvailable offers every slot.
var AlwaysAvailable = PolicyFunc(func(time.Time, string) bool { return true })

// RandomPolicy offers each slot independently with probability Rate.
type RandomPolicy struct {
	Rate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPolicy(rate float64, rng *rand.Rand) *RandomPolicy {
	return &RandomPolicy{Rate: rate, rng: rng}
}

func (p *RandomPolicy) Available(time.Time, string) bool {
	if p.rng == nil {
		return rand.Float64() < p.Rate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.Rate
}

// ===============================
// Window
// ===============================

type window struct {
	open  time.Duration
	close time.Duration
}

func parseClock(hm string) (time.Duration, error) {
	t, err := time.Parse(TimeFormat, hm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (h OperatingHours) window() (window, error) {
	open, err := parseClock(h.Open)
	if err != nil {
		return window{}, fmt.Errorf("slot: invalid open %q: %w", h.Open, err)
	}
	closeAt, err := parseClock(h.Close)
	if err != nil {
		return window{}, fmt.Errorf("slot: invalid close %q: %w", h.Close, err)
	}
	if closeAt <= open {
		return window{}, fmt.Errorf("slot: close %s must be after open %s", h.Close, h.Open)
	}
	return window{open: open, close: closeAt}, nil
}

// Validate checks the window is usable with the given increment.
func (h OperatingHours) Validate(increment time.Duration) error {
	w, err := h.window()
	if err != nil {
		return err
	}
	if increment <= 0 || increment > w.close-w.open {
		return fmt.Errorf("slot: increment %s does not fit %s-%s", increment, h.Open, h.Close)
	}
	return nil
}

func (w window) times(increment time.Duration) []string {
	var out []string
	for cur := w.open; cur+increment <= w.close; cur += increment {
		out = append(out, fmt.Sprintf("%02d:%02d", int(cur.Hours()), int(cur.Minutes())%60))
	}
	return out
}

// ===============================
// Eligibility
// ===============================

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Eligible reports whether date is today or tomorrow relative to now, in
// now's location. Only these two days are bookable.
func Eligible(date, now time.Time) bool {
	d := day(date.In(now.Location()))
	today := day(now)
	return d.Equal(today) || d.Equal(today.AddDate(0, 0, 1))
}

// ===============================
// Slot generation
// ===============================

// For lists the bookable slots for date. Dates other than today and
// tomorrow, or an unusable window, yield an empty slice.
func For(date, now time.Time, hours OperatingHours, increment time.Duration, policy AvailabilityPolicy) []Slot {
	out := []Slot{}
	if !Eligible(date, now) {
		return out
	}
	if err := hours.Validate(increment); err != nil {
		return out
	}
	if policy == nil {
		policy = AlwaysAvailable
	}

	w, _ := hours.window()
	for _, hm := range w.times(increment) {
		if !policy.Available(date, hm) {
			continue
		}
		out = append(out, Slot{Time: hm, Available: true})
	}
	return out
}

// Validate checks that (dateStr, hm) names a slot on the grid of an
// eligible day. It does not consult any availability policy.
func Validate(dateStr, hm string, now time.Time, hours OperatingHours, increment time.Duration) error {
	if dateStr == "" || hm == "" {
		return httperr.ErrBusiness("no_slot_selected")
	}
	date, err := time.ParseInLocation(DateFormat, dateStr, now.Location())
	if err != nil {
		return httperr.ErrBusiness("invalid_date")
	}
	if !Eligible(date, now) {
		return httperr.ErrBusiness("date_not_bookable")
	}
	if err := hours.Validate(increment); err != nil {
		return err
	}

	w, _ := hours.window()
	for _, t := range w.times(increment) {
		if t == hm {
			return nil
		}
	}
	return httperr.ErrBusiness("outside_working_hours")
}
