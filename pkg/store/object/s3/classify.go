package s3

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// isTransient returns true if the error is worth retrying: timeouts,
// throttling, and server-side 5xx responses.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"RequestTimeout", "RequestTimeoutException":
			return true
		case "InternalError", "ServiceUnavailable", "ServiceException":
			return true
		}
		return false
	}

	// Connection-level failures arrive as plain errors from the HTTP
	// transport.
	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "EOF")
}

// classify maps a raw SDK failure to the store error taxonomy. Transient
// failures reaching this point have exhausted their retry budget and become
// KindUnavailable.
func classify(err error, key object.Key) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return storeobject.NewError(storeobject.KindCancelled, key, err)
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return storeobject.NewError(storeobject.KindNotFound, key, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return storeobject.NewError(storeobject.KindNotFound, key, err)
		case "AccessDenied", "Forbidden", "403":
			return storeobject.NewError(storeobject.KindPermissionDenied, key, err)
		case "PreconditionFailed":
			return storeobject.NewError(storeobject.KindObjectChanged, key, err)
		}
	}

	// Older S3-compatible stores answer 412 without a parseable code.
	errStr := err.Error()
	if strings.Contains(errStr, "PreconditionFailed") || strings.Contains(errStr, "StatusCode: 412") {
		return storeobject.NewError(storeobject.KindObjectChanged, key, err)
	}
	if strings.Contains(errStr, "StatusCode: 404") {
		return storeobject.NewError(storeobject.KindNotFound, key, err)
	}
	if strings.Contains(errStr, "StatusCode: 403") {
		return storeobject.NewError(storeobject.KindPermissionDenied, key, err)
	}

	return storeobject.NewError(storeobject.KindUnavailable, key, err)
}
