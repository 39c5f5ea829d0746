package httpadapter

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	rejectReasonRateLimited = "rate_limited"
	rejectReasonOverloaded  = "overloaded"
)

// rejectObserver is notified whenever traffic control sheds a request.
type rejectObserver func(reason string)

func rateLimitMiddleware(next http.Handler, rps float64, burst int, observers ...rejectObserver) http.Handler {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reservation := limiter.Reserve()
		if !reservation.OK() {
			rejectRequest(w, r, http.StatusTooManyRequests, time.Second, rejectReasonRateLimited, observers)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			rejectRequest(w, r, http.StatusTooManyRequests, delay, rejectReasonRateLimited, observers)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware bounds concurrent requests and waits up to wait for a free slot.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration, observers ...rejectObserver) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case slots <- struct{}{}:
		default:
			if !acquireSlot(r, slots, wait) {
				rejectRequest(w, r, http.StatusServiceUnavailable, wait, rejectReasonOverloaded, observers)
				return
			}
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

func acquireSlot(r *http.Request, slots chan struct{}, wait time.Duration) bool {
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-r.Context().Done():
		return false
	}
}

func rejectRequest(w http.ResponseWriter, r *http.Request, status int, retryAfter time.Duration, reason string, observers []rejectObserver) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	slog.Warn("http_request_rejected",
		"request_id", requestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"reason", reason,
	)
	for _, observe := range observers {
		observe(reason)
	}

	message := "too many requests"
	if status == http.StatusServiceUnavailable {
		message = "server is overloaded, retry later"
	}
	writeError(w, status, message)
}
