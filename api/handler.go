package api

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/cartrecovery/api/routes"
)

// NewHandler returns the HTTP handler that cmd/api wires into its server.
// Span names carry only the method so emails in paths stay out of traces.
func NewHandler(p routes.RouterParams) http.Handler {
	return otelhttp.NewHandler(routes.NewRouter(p), "cart-recovery-api",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
}
