package errx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis classifies a failure of the Redis conversation checkpoint store.
// A missing key is a missing checkpoint; deadline overruns and network
// timeouts are told apart from an unreachable store.
func WrapRedis(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, CheckpointNotFoundMessage)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return New(err, http.StatusGatewayTimeout, CheckpointTimeoutMessage)
	}

	return New(err, http.StatusServiceUnavailable, CheckpointStoreMessage)
}
