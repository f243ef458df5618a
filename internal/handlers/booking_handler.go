package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	domain "github.com/BruksfildServices01/barber-booking/internal/domain/booking"
	"github.com/BruksfildServices01/barber-booking/internal/httperr"
	"github.com/BruksfildServices01/barber-booking/internal/httpresp"
	"github.com/BruksfildServices01/barber-booking/internal/middleware"
	ucBooking "github.com/BruksfildServices01/barber-booking/internal/usecase/booking"
	"github.com/BruksfildServices01/barber-booking/internal/usecase/liveview"
)

// ======================================================
// HANDLER
// ======================================================

type BookingHandler struct {
	confirm *ucBooking.Confirm
	live    *liveview.Service
}

func NewBookingHandler(confirm *ucBooking.Confirm, live *liveview.Service) *BookingHandler {
	return &BookingHandler{confirm: confirm, live: live}
}

// ======================================================
// REQUESTS
// ======================================================

type CreateBookingRequest struct {
	BarberID     string `json:"barber_id"`
	BarberName   string `json:"barber_name"`
	Date         string `json:"date"` // YYYY-MM-DD
	Time         string `json:"time"` // HH:mm
	ServiceName  string `json:"service_name"`
	ServicePrice int64  `json:"service_price"`
}

// ======================================================
// CREATE
// ======================================================

func (h *BookingHandler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Malformed request body.")
		return
	}

	pair, err := h.confirm.Execute(c.Request.Context(), ucBooking.ConfirmInput{
		Request: domain.Request{
			BarberID:     req.BarberID,
			BarberName:   req.BarberName,
			Date:         req.Date,
			Time:         req.Time,
			ServiceName:  req.ServiceName,
			ServicePrice: req.ServicePrice,
		},
		Subject: domain.Subject{
			ID:          c.GetString(middleware.ContextSubjectID),
			DisplayName: c.GetString(middleware.ContextDisplayName),
		},
	})
	if err != nil {
		writeBookingError(c, err)
		return
	}

	httpresp.Created(c, pair.Customer)
}

// ======================================================
// STREAMS
// ======================================================

func (h *BookingHandler) StreamMine(c *gin.Context) {
	subjectID := c.GetString(middleware.ContextSubjectID)
	streamView(c, "appointments", func(ctx context.Context, obs liveview.Observer[domain.CustomerAppointment]) (*liveview.Subscription, error) {
		return h.live.CustomerBookings(ctx, subjectID, obs)
	})
}

func (h *BookingHandler) StreamSchedule(c *gin.Context) {
	barberID := c.GetString(middleware.ContextBarberID)
	streamView(c, "schedule", func(ctx context.Context, obs liveview.Observer[domain.BarberAppointment]) (*liveview.Subscription, error) {
		return h.live.BarberSchedule(ctx, barberID, obs)
	})
}

// ======================================================
// ERRORS
// ======================================================

func writeBookingError(c *gin.Context, err error) {
	var invalid *domain.InvalidSelectionError
	if errors.As(err, &invalid) {
		msg := "Invalid selection: " + invalid.Field + "."
		if code, ok := httperr.CodeOf(err); ok {
			msg = "Invalid selection: " + code + "."
		}
		httperr.BadRequest(c, "invalid_selection", msg)
		return
	}

	var failure *domain.BookingFailure
	if !errors.As(err, &failure) {
		httperr.Internal(c, "internal_error", "Unexpected error.")
		return
	}

	switch failure.Reason {
	case domain.ReasonSlotTaken:
		httperr.Conflict(c, "slot_taken", "This slot was just booked by someone else.")
	case domain.ReasonPartialWrite:
		httperr.BadGateway(c, "partial_write", "Booking could not be completed. Please try again.")
	default:
		httperr.Unavailable(c, "booking_failed", "Booking service unavailable. Please try again.")
	}
}
