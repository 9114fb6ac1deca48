package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("object store denied access")
	ErrUnavailable  = errors.New("object store unavailable")
	ErrUnsupported  = errors.New("operation not supported by storage backend")
)

// OpError records the failed operation, the key it was working on and the
// error class. errors.Is matches both the class sentinel and the cause.
type OpError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	if e.Kind != nil {
		return msg + ": " + e.Kind.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func opError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Key: key, Kind: classify(err), Err: err}
}

// classify maps SDK and network failures onto the package sentinels.
// Cancellation by the caller is left unclassified.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled":
			return ErrAccessDenied
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "RequestTimeTooSkewed",
			"ServiceUnavailable", "InternalError":
			return ErrUnavailable
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == http.StatusNotFound:
			return ErrNotFound
		case code == http.StatusForbidden || code == http.StatusUnauthorized:
			return ErrAccessDenied
		case code == http.StatusTooManyRequests || code >= 500:
			return ErrUnavailable
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return ErrUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrUnavailable
	}
	return nil
}

func notFound(op, key string) error {
	return &OpError{Op: op, Key: key, Kind: ErrNotFound}
}

func unsupported(op string) error {
	return &OpError{Op: op, Kind: ErrUnsupported, Err: fmt.Errorf("%s is not available on this backend", op)}
}

// exists folds a Stat result into the Exists contract.
func exists(_ *FileInfo, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
