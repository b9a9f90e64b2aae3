// Package fetcher wraps net/http with the retry and classification policy
// the scheduler needs: every fetch resolves to a Response, a transient
// failure worth retrying, or a fatal failure that should never be retried.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/0xhtml/crawler/internal/urlkey"
)

// Outcome classifies the result of a Fetch call.
type Outcome int

const (
	// OutcomeOK means Response is populated and the caller should
	// inspect its status code.
	OutcomeOK Outcome = iota
	// OutcomeTransient means every retry was exhausted on a
	// network/protocol/timeout error; treat as skip, do not re-enqueue.
	OutcomeTransient
	// OutcomeFatal means a non-retryable error (TLS, content decoding,
	// redirect budget)
	// occurred; treat as skip, do not re-enqueue.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// maxResponseBodyBytes bounds how much of a response body we read into
// memory before handing it to the extractor.
const maxResponseBodyBytes = 10 * 1024 * 1024

const (
	connectTimeout        = 15 * time.Second
	responseHeaderTimeout = 20 * time.Second
	writeTimeout          = 5 * time.Second
	maxRedirects          = 5

	retryBackoff = 500 * time.Millisecond
	maxRetries   = 1 // one retry => two attempts total
)

// UserAgent is sent on every outgoing request.
const UserAgent = "crawler"

// Response is the successful result of a fetch, independent of HTTP
// status code — a 404 is a Response, not an Outcome.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the request URL after following redirects. It may
	// differ in host from the URL that was requested.
	FinalURL string
}

// Fetcher performs retrying HTTP GETs with the crawler's fixed transport
// policy (timeouts, redirect cap, gzip, HTTP/2 via default negotiation).
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher with the crawler's standard transport: bounded
// connect/response-header timeouts, automatic decompression, HTTP/2
// negotiated by the default transport, and a 5-hop redirect cap.
func New() *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
		DisableCompression:    false,
		ForceAttemptHTTP2:     true,
	}
	client := &http.Client{
		Transport:     transport,
		CheckRedirect: RedirectPolicy(maxRedirects),
	}
	return &Fetcher{client: client}
}

// Fetch issues a GET for u with the given extra headers, retrying
// transient failures up to maxRetries times with a constant backoff.
func (f *Fetcher) Fetch(ctx context.Context, u urlkey.URL, headers map[string]string) (*Response, Outcome) {
	var resp *Response
	outcome := OutcomeTransient

	op := func() error {
		r, err := f.doOnce(ctx, u, headers)
		if err != nil {
			switch classify(err) {
			case OutcomeFatal:
				outcome = OutcomeFatal
				return backoff.Permanent(err)
			default:
				outcome = OutcomeTransient
				return err
			}
		}
		resp = r
		outcome = OutcomeOK
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, outcome
	}
	return resp, OutcomeOK
}

func (f *Fetcher) doOnce(ctx context.Context, u urlkey.URL, headers map[string]string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, connectTimeout+responseHeaderTimeout+writeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	// Accept-Encoding: gzip is added by the transport itself; setting it
	// here would turn off the transport's transparent decompression.
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, err
	}

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   finalURL,
	}, nil
}

// classify maps a transport error to the outcome the scheduler should
// see once retries are exhausted.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return OutcomeFatal
	}
	if errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum) {
		return OutcomeFatal
	}
	var corrupt flate.CorruptInputError
	if errors.As(err, &corrupt) {
		return OutcomeFatal
	}

	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return OutcomeFatal
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return OutcomeFatal
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return OutcomeFatal
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return OutcomeFatal
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return OutcomeTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeTransient
	}

	return OutcomeTransient
}
