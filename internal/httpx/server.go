package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the shared middleware stack. The timeout must cover
// the longest request the service serves; on the POS side that is a
// checkout blocked on the gateway popup.
func NewRouter(timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(timeout))
	r.Use(Metrics)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RequirePIN gates a route group behind the static access secret. The
// real credential story lives outside this system; this compare is the
// whole contract.
func RequirePIN(pin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Access-Pin") != pin {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid pin"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
