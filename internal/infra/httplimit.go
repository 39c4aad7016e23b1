package infra

import (
	"errors"
	"fmt"
	"io"
)

// ResponseTooLargeError reports that a body exceeded its read limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("body exceeded limit of %d bytes", e.Limit)
}

// IsResponseTooLarge reports whether err is a read limit violation.
func IsResponseTooLarge(err error) bool {
	var limitErr ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// ReadAllWithLimit reads r up to limit bytes. A limit <= 0 reads everything.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
