package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/barber-booking/internal/handlers"
	"github.com/BruksfildServices01/barber-booking/internal/middleware"
)

type Deps struct {
	JWTSecret   string
	CORSOrigins []string
	Barbers     *handlers.BarberHandler
	Bookings    *handlers.BookingHandler
	Metrics     http.Handler
}

func RegisterRoutes(r *gin.Engine, d Deps) {

	// ======================================================
	// MIDDLEWARE GLOBAL
	// ======================================================
	r.Use(middleware.CORSMiddleware(d.CORSOrigins...))

	// ======================================================
	// OPS
	// ======================================================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// ======================================================
	// API (JSON + SSE)
	// ======================================================
	api := r.Group("/api")
	{
		// ------------------------------
		// PUBLIC
		// ------------------------------
		api.GET("/barbers", d.Barbers.List)
		api.GET("/barbers/stream", d.Barbers.Stream)
		api.GET("/barbers/:id/slots", d.Barbers.Slots)

		// ------------------------------
		// AUTHENTICATED
		// ------------------------------
		secured := api.Group("/me")
		secured.Use(middleware.AuthMiddleware(d.JWTSecret))
		{
			secured.POST("/appointments", d.Bookings.Create)
			secured.GET("/appointments/stream", d.Bookings.StreamMine)

			secured.GET("/schedule/stream",
				middleware.RequireRole(middleware.RoleBarber),
				d.Bookings.StreamSchedule,
			)
		}
	}
}
