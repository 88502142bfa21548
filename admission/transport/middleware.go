package transport

import (
	"net/http"
	"strconv"
	"time"

	"blockslot/admission/application"
	"blockslot/admission/domain"

	"github.com/sirupsen/logrus"
)

const (
	rejectRateLimited  = "rate_limited"
	rejectSessionsFull = "sessions_full"
)

// RejectObserver conta recusas na borda (ex: PromStats).
type RejectObserver interface {
	Rejected(reason string)
}

type ThrottleOptions struct {
	Store               domain.LimiterStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Observer            RejectObserver
	Logger              logrus.FieldLogger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// Throttle limita pedidos por origem antes do upgrade websocket e na API.
// Store nil desliga o middleware.
func Throttle(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	svc := application.Throttle{Store: opts.Store, RetryAfter: opts.RetryAfter}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(key))
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", strconv.FormatFloat(ri.RPS(), 'f', -1, 64))
					w.Header().Set("X-RateLimit-Burst", strconv.Itoa(ri.Burst()))
				}
			}

			dec := svc.Decide(key)
			if !dec.Allowed {
				secs := int(dec.RetryAfter / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if opts.Observer != nil {
					opts.Observer.Rejected(rejectRateLimited)
				}
				opts.Logger.WithFields(logrus.Fields{
					"key":  key,
					"path": r.URL.Path,
				}).Debug("request throttled")
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type SessionCapOptions struct {
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
	Observer       RejectObserver
}

// SessionCap segura uma vaga do pool enquanto o handler roda (para /ws, a vida
// inteira da sessão). Pool nil desliga o limite.
func SessionCap(opts SessionCapOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	gate := application.SessionGate{Pool: opts.Pool, AcquireTimeout: opts.AcquireTimeout}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := gate.Acquire(r.Context())
			if !ok {
				if opts.Observer != nil {
					opts.Observer.Rejected(rejectSessionsFull)
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
