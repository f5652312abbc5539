package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// Sentry wraps each request in a Sentry transaction. Transactions are tagged
// with the request id, the document id for /documents/{id} routes and the
// active index version that served the request. activeVersion may be nil.
// Without an initialized client the transaction is a no-op.
func Sentry(activeVersion func() (int64, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}

			options := []sentry.SpanOption{
				sentry.WithOpName("http.server"),
				sentry.WithTransactionSource(sentry.SourceURL),
			}
			if trace := r.Header.Get("sentry-trace"); trace != "" {
				options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
			}

			tx := sentry.StartTransaction(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path), options...)
			defer tx.Finish()

			r = r.WithContext(sentry.SetHubOnContext(tx.Context(), hub))
			hub.Scope().SetContext("request", map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
				"query":  r.URL.RawQuery,
			})

			defer func() {
				if err := recover(); err != nil {
					tx.Status = sentry.SpanStatusInternalError
					hub.RecoverWithContext(r.Context(), err)
					panic(err)
				}
			}()

			rec := &sentryResponseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Route params and the active version are only known after routing.
			for k, v := range requestTags(r, activeVersion) {
				hub.Scope().SetTag(k, v)
				tx.SetTag(k, v)
			}

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			tx.Status = httpStatusToSpanStatus(status)
			tx.SetData("http.response.status_code", status)

			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				tx.Name = fmt.Sprintf("%s %s", r.Method, rctx.RoutePattern())
				tx.Source = sentry.SourceRoute
			}

			if status >= 500 {
				hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
			}
		})
	}
}

// requestTags collects the Sentry tags for a routed request.
func requestTags(r *http.Request, activeVersion func() (int64, bool)) map[string]string {
	tags := make(map[string]string, 3)
	if id := GetRequestID(r.Context()); id != "" {
		tags["request_id"] = id
	}
	if id := chi.URLParam(r, "id"); id != "" {
		tags["document_id"] = id
	}
	if activeVersion != nil {
		if v, ok := activeVersion(); ok {
			tags["index.version"] = strconv.FormatInt(v, 10)
		}
	}
	return tags
}

func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	switch {
	case status >= 200 && status < 300:
		return sentry.SpanStatusOK
	case status == http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case status == http.StatusConflict:
		return sentry.SpanStatusAlreadyExists
	case status == http.StatusRequestEntityTooLarge, status == http.StatusTooManyRequests:
		return sentry.SpanStatusResourceExhausted
	case status == 499:
		return sentry.SpanStatusCanceled
	case status >= 400 && status < 500:
		return sentry.SpanStatusInvalidArgument
	case status == http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	case status == http.StatusGatewayTimeout:
		return sentry.SpanStatusDeadlineExceeded
	case status >= 500:
		return sentry.SpanStatusInternalError
	default:
		return sentry.SpanStatusUnknown
	}
}

type sentryResponseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *sentryResponseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *sentryResponseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
