package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/domain/slot"
	"github.com/BruksfildServices01/barber-booking/internal/httperr"
	"github.com/BruksfildServices01/barber-booking/internal/httpresp"
	"github.com/BruksfildServices01/barber-booking/internal/store"
	"github.com/BruksfildServices01/barber-booking/internal/usecase/liveview"
)

// ======================================================
// HANDLER
// ======================================================

type SlotConfig struct {
	Hours     slot.OperatingHours
	Increment time.Duration
	Policy    slot.AvailabilityPolicy
	Now       func() time.Time
}

type BarberHandler struct {
	store store.Store
	live  *liveview.Service
	slots SlotConfig
}

func NewBarberHandler(st store.Store, live *liveview.Service, slots SlotConfig) *BarberHandler {
	if slots.Now == nil {
		slots.Now = time.Now
	}
	return &BarberHandler{store: st, live: live, slots: slots}
}

// ======================================================
// DIRECTORY
// ======================================================

func (h *BarberHandler) List(c *gin.Context) {
	barbers, err := h.live.ListBarbers(c.Request.Context())
	if err != nil {
		httperr.Unavailable(c, "directory_unavailable", "Could not load barbers.")
		return
	}
	httpresp.List(c, barbers)
}

func (h *BarberHandler) Stream(c *gin.Context) {
	streamView(c, "barbers", func(ctx context.Context, obs liveview.Observer[domain.Barber]) (*liveview.Subscription, error) {
		return h.live.Directory(ctx, obs)
	})
}

// ======================================================
// SLOTS
// ======================================================

func (h *BarberHandler) Slots(c *gin.Context) {
	barberID := c.Param("id")

	if _, err := h.store.Get(c.Request.Context(), domain.BarbersLocation, barberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperr.NotFound(c, "barber_not_found", "Barber not found.")
			return
		}
		httperr.Unavailable(c, "directory_unavailable", "Could not load barber.")
		return
	}

	now := h.slots.Now()
	dateStr := c.DefaultQuery("date", now.Format(slot.DateFormat))

	date, err := time.ParseInLocation(slot.DateFormat, dateStr, now.Location())
	if err != nil {
		httperr.BadRequest(c, "invalid_date", "Date must be YYYY-MM-DD.")
		return
	}

	httpresp.OK(c, gin.H{
		"barber_id": barberID,
		"date":      dateStr,
		"slots":     slot.For(date, now, h.slots.Hours, h.slots.Increment, h.slots.Policy),
	})
}
