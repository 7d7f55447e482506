package models

import (
	"errors"
	"fmt"
)

// ErrKOutOfRange is returned when a query asks for a negative K or more than the configured maximum.
var ErrKOutOfRange = errors.New("k out of range")

// RetrievalQuery is a request for the K images most similar to a query image.
type RetrievalQuery struct {
	ImagePath string `json:"image_path,omitempty"`
	K         int    `json:"k,omitempty"`
}

// Validate replaces a zero K with defaultK. A negative K, or one above maxK when maxK is
// positive, is rejected with ErrKOutOfRange; K is never silently reduced.
func (q *RetrievalQuery) Validate(defaultK, maxK int) error {
	if q.K < 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrKOutOfRange, q.K)
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		return fmt.Errorf("%w: k %d exceeds the maximum of %d", ErrKOutOfRange, q.K, maxK)
	}
	return nil
}
