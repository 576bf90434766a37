package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/powledger/foundation/metrics"
	"github.com/ardanlabs/powledger/foundation/web"
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			var status int
			if v, verr := web.GetValues(ctx); verr == nil {
				status = v.StatusCode
			}
			metrics.ObserveRequest(status, err)

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
