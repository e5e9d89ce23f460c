package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hyperterse/widgetquery/core/infrastructure/logging"
)

// RequestLogger logs one line per request through the tagged logger
func RequestLogger(next http.Handler) http.Handler {
	log := logging.New("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		reqLog := log.With("request_id", chimiddleware.GetReqID(r.Context()))
		if status >= http.StatusInternalServerError {
			reqLog.Warnf("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start))
			return
		}
		reqLog.Debugf("%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start))
	})
}
