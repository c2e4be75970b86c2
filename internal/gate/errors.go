package gate

import (
	"context"
	"errors"
	"net/http"

	"hearthside/storefront/internal/breaker"
	"hearthside/storefront/internal/token"
	"hearthside/storefront/internal/validate"
)

// Kind is the failure taxonomy. Each kind maps to one status code and one
// client-visible message policy.
type Kind int

const (
	KindAuth        Kind = iota // 401, generic category message
	KindValidation              // 400, first offending field only
	KindRateLimit               // 429, retryable after window reset
	KindOrigin                  // 403, client must correct origin/transport
	KindUpstream                // 500, sanitized message
	KindUnavailable             // 503, retryable upstream outage
)

func (k Kind) Status() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindOrigin:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Failure is a classified handler error. Message is what the client sees;
// Err carries the server-side detail for logging only.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

func Auth(msg string) *Failure {
	return &Failure{Kind: KindAuth, Message: msg}
}

func Validation(msg string) *Failure {
	return &Failure{Kind: KindValidation, Message: msg}
}

func NotFound(msg string) *Failure {
	return &Failure{Kind: KindValidation, Message: msg, Err: errNotFound}
}

func Upstream(err error) *Failure {
	return &Failure{Kind: KindUpstream, Message: "internal error", Err: err}
}

func Unavailable(err error) *Failure {
	return &Failure{Kind: KindUnavailable, Message: "service temporarily unavailable", Err: err}
}

var errNotFound = errors.New("not found")

// classify maps an arbitrary handler error onto the taxonomy. Unknown
// errors are upstream failures: the client gets a sanitized message, the
// log gets the detail.
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	var fe *validate.FieldError
	if errors.As(err, &fe) {
		return &Failure{Kind: KindValidation, Message: fe.Error()}
	}
	switch {
	case errors.Is(err, token.ErrNoToken), errors.Is(err, token.ErrInvalidToken), errors.Is(err, token.ErrInvalidRole):
		return &Failure{Kind: KindAuth, Message: token.Category(err), Err: err}
	case errors.Is(err, breaker.ErrOpen), errors.Is(err, context.DeadlineExceeded):
		return Unavailable(err)
	default:
		return Upstream(err)
	}
}

// Missing resources answer 404 instead of the validation default.
func (f *Failure) status() int {
	if errors.Is(f.Err, errNotFound) {
		return http.StatusNotFound
	}
	return f.Kind.Status()
}
