package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/barber-booking/internal/httperr"
	"github.com/BruksfildServices01/barber-booking/internal/usecase/liveview"
)

type openFunc[T any] func(ctx context.Context, obs liveview.Observer[T]) (*liveview.Subscription, error)

// streamView relays a live view as server-sent events until the client
// leaves or the view fails. Slow clients only ever get the latest snapshot.
func streamView[T any](c *gin.Context, event string, open openFunc[T]) {
	ctx := c.Request.Context()

	snaps := make(chan []T, 1)
	errs := make(chan error, 1)

	sub, err := open(ctx, liveview.Funcs[T]{
		Snapshot: func(items []T) {
			select {
			case <-snaps:
			default:
			}
			snaps <- items
		},
		Error: func(err error) {
			errs <- err
		},
	})
	if err != nil {
		httperr.Unavailable(c, "subscription_failed", "Live view unavailable.")
		return
	}
	defer sub.Unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			return
		case items := <-snaps:
			c.SSEvent(event, items)
			c.Writer.Flush()
		case <-errs:
			c.SSEvent("error", httperr.HTTPError{
				Code:    "subscription_failed",
				Message: "Live view ended.",
			})
			c.Writer.Flush()
			return
		}
	}
}
