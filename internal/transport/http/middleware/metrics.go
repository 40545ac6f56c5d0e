package middleware

import "net/http"

// StatusRecorder is anything that counts responses by status class.
type StatusRecorder interface {
	RecordHTTPStatus(status int)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Metrics returns middleware that reports the response status of every
// request to the collector.
func Metrics(rec StatusRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			rec.RecordHTTPStatus(sw.status)
		})
	}
}
