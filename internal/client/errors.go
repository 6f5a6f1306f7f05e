package client

import (
	"errors"
	"fmt"

	"github.com/dalfonso89/ratewatch/internal/models"
)

// ErrorKind classifies why a fetch failed
type ErrorKind int

const (
	// KindNetwork covers transport failures: offline, DNS, connection reset, timeout
	KindNetwork ErrorKind = iota
	// KindHTTP is any non-2xx response
	KindHTTP
	// KindParse is a body that is not JSON or does not match the rates schema
	KindParse
)

func (kind ErrorKind) String() string {
	switch kind {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is returned by FetchRates for every failure
type FetchError struct {
	Kind       ErrorKind
	Base       models.CurrencyCode
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetch rates for %s: backend returned status %d", e.Base, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("fetch rates for %s: %s error: %v", e.Base, e.Kind, e.Err)
		}
		return fmt.Sprintf("fetch rates for %s: %s error", e.Base, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a FetchError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind, true
	}
	return 0, false
}

func IsNetwork(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNetwork
}

func IsHTTP(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindHTTP
}

func IsParse(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindParse
}
