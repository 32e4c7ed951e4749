// Package mock provides a test double for [report.Refiner].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/soelive/internal/report"
)

var _ report.Refiner = (*Refiner)(nil)

// Refiner is a mock implementation of report.Refiner.
type Refiner struct {
	mu sync.Mutex

	// Result is returned by Refine when Err is nil.
	Result *report.RefinedContent

	// Err, if non-nil, is returned by Refine.
	Err error

	// Calls records the attendance data passed to Refine.
	Calls []report.AttendanceData
}

// Refine records the call and returns Result, Err.
func (r *Refiner) Refine(ctx context.Context, a report.AttendanceData) (*report.RefinedContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, a)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Result, nil
}

// CallCount returns the number of Refine calls.
func (r *Refiner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
