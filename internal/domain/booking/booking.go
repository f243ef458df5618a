package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ===============================
// Status
// ===============================

type Status string

// StatusConfirmed is the only state a booking ever has. There is no
// cancellation or reschedule.
const StatusConfirmed Status = "Confirmed"

// ===============================
// Reference data
// ===============================

type Service struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Duration int    `json:"duration"`
}

type Barber struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"review_count"`
	ImageURL    string    `json:"image_url"`
	Services    []Service `json:"services"`
}

// ===============================
// Request / identity
// ===============================

type Request struct {
	BarberID     string `json:"barber_id"`
	BarberName   string `json:"barber_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ServiceName  string `json:"service_name"`
	ServicePrice int64  `json:"service_price"`
}

// Subject is the authenticated caller making the booking.
type Subject struct {
	ID          string
	DisplayName string
}

// ===============================
// Copies
// ===============================

// CustomerAppointment is the copy stored under the customer's bookings.
// CreatedAt is nil while the server timestamp is pending.
type CustomerAppointment struct {
	ID          string     `json:"id"`
	BarberID    string     `json:"barber_id"`
	BarberName  string     `json:"barber_name"`
	Service     string     `json:"service"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	TotalPrice  int64      `json:"total_price"`
	BookingFee  int64      `json:"booking_fee"`
	BarberPrice int64      `json:"barber_price"`
	Status      Status     `json:"status"`
	SubjectID   string     `json:"subject_id"`
	CreatedAt   *time.Time `json:"created_at"`
}

// BarberAppointment is the copy stored under the barber's schedule.
type BarberAppointment struct {
	ID                  string     `json:"id"`
	Date                string     `json:"date"`
	Time                string     `json:"time"`
	Service             string     `json:"service"`
	CustomerSubjectID   string     `json:"customer_subject_id"`
	CustomerDisplayName string     `json:"customer_display_name"`
	PriceEarned         int64      `json:"price_earned"`
	Status              Status     `json:"status"`
	CreatedAt           *time.Time `json:"created_at"`
}

// Pair is a committed booking: both copies share ID.
type Pair struct {
	Customer CustomerAppointment `json:"customer"`
	Barber   BarberAppointment   `json:"barber"`
}

// ===============================
// Identity
// ===============================

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:barber-booking:appointment"))

// NewID derives the booking id from the slot and the subject, so a retried
// write lands on the same key instead of creating a duplicate.
func NewID(barberID, date, hm, subjectID string) string {
	name := strings.Join([]string{barberID, date, hm, subjectID}, "|")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Build assembles both copies of a booking from a validated request.
func Build(req Request, subject Subject, q Quote) Pair {
	id := NewID(req.BarberID, req.Date, req.Time, subject.ID)

	return Pair{
		Customer: CustomerAppointment{
			ID:          id,
			BarberID:    req.BarberID,
			BarberName:  req.BarberName,
			Service:     req.ServiceName,
			Date:        req.Date,
			Time:        req.Time,
			TotalPrice:  q.TotalPrice,
			BookingFee:  q.BookingFee,
			BarberPrice: q.BarberPrice,
			Status:      StatusConfirmed,
			SubjectID:   subject.ID,
		},
		Barber: BarberAppointment{
			ID:                  id,
			Date:                req.Date,
			Time:                req.Time,
			Service:             req.ServiceName,
			CustomerSubjectID:   subject.ID,
			CustomerDisplayName: subject.DisplayName,
			PriceEarned:         q.PriceEarned,
			Status:              StatusConfirmed,
		},
	}
}

// Valid reports whether a decoded directory entry is usable.
func (b Barber) Valid() bool {
	return b.ID != "" && b.Name != "" && b.Rating >= 0 && b.Rating <= 5 && b.ReviewCount >= 0
}
