package fetcher

import (
	"errors"
	"net/http"
)

// ErrTooManyRedirects is returned by the transport's CheckRedirect hook
// once a request chain exceeds the configured hop budget. It is a
// sentinel so callers can classify it as fatal without string matching.
var ErrTooManyRedirects = errors.New("fetcher: too many redirects")

// RedirectPolicy builds a http.Client.CheckRedirect func that caps the
// number of hops a single fetch may follow.
func RedirectPolicy(maxHops int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}
