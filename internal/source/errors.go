package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/url"
)

// Kind classifies a remote-source failure into the handling buckets the
// engine acts on.
type Kind int

const (
	// KindTransient covers connection resets, timeouts and HTTP 5xx.
	// Retried within the run's attempt budget.
	KindTransient Kind = iota

	// KindAuthRejected covers HTTP 401/403. Terminal: a credential
	// problem does not go away by retrying.
	KindAuthRejected

	// KindCertificate covers TLS handshake failures rooted in the client
	// certificate, including expiry. Terminal.
	KindCertificate
)

// Error is a classified remote-source failure. Reason is the short,
// user-visible text; the raw cause is only for logs.
type Error struct {
	Kind   Kind
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Reason + ": " + e.cause.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.cause }

// Classify maps any error from a fetch to its handling bucket.
// Unrecognized errors are treated as transient: retry is the safe
// default for anything plausibly recoverable.
func Classify(err error) Kind {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind
	}
	return KindTransient
}

// IsCertificateExpiry reports whether the failure is specifically an
// expired certificate, which sets the job's certificate-expired flag.
func IsCertificateExpiry(err error) bool {
	var certErr x509.CertificateInvalidError
	if errors.As(err, &certErr) {
		return certErr.Reason == x509.Expired
	}
	var srcErr *Error
	if errors.As(err, &srcErr) && srcErr.cause != nil {
		return IsCertificateExpiry(srcErr.cause)
	}
	return false
}

func classifyTransportError(err error) error {
	// Context errors pass through so cancellation is not retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	// TLS-level failures are certificate problems, not network ones.
	var recordErr tls.RecordHeaderError
	var certInvalid x509.CertificateInvalidError
	var unknownAuth x509.UnknownAuthorityError
	var alertErr tls.AlertError
	switch {
	case errors.As(err, &certInvalid), errors.As(err, &unknownAuth),
		errors.As(err, &recordErr), errors.As(err, &alertErr):
		return &Error{Kind: KindCertificate, Reason: "certificate rejected by remote source", cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTransient, Reason: "remote source timed out", cause: err}
	}

	return &Error{Kind: KindTransient, Reason: "connection to remote source failed", cause: err}
}

// classifyStatus maps non-2xx statuses to error kinds. 2xx returns ok=false.
func classifyStatus(status int) (Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return 0, false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthRejected, true
	default:
		return KindTransient, true
	}
}
