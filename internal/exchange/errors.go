package exchange

import (
	"errors"

	"github.com/adshao/go-binance/v2/futures"
)

// classify translates a go-binance error into the shape Limiter.Do expects:
// an *HTTPStatusError when the API reported a structured code, so the
// retry/permanent split can be applied.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *futures.APIError
	if errors.As(err, &apiErr) {
		if isPermanentCode(apiErr.Code) {
			return &HTTPStatusError{StatusCode: 400, Err: err}
		}
		// 429/5xx-equivalent and unrecognized codes are treated as
		// transient so the limiter retries them.
		return &HTTPStatusError{StatusCode: 429, Err: err}
	}

	// Network errors, timeouts, context cancellation: transient.
	return err
}

// isPermanentCode reports whether a Binance error code is a client-request
// problem that will not succeed on retry.
func isPermanentCode(code int64) bool {
	switch code {
	case -1021, -1022, -2014, -2015, -2019, -4003, -4014, -4015, -4044:
		return true
	default:
		return false
	}
}

func errorsAsAPIError(err error, target **futures.APIError) bool {
	return errors.As(err, target)
}
