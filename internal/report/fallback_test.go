package report_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/soelive/internal/report"
	reportmock "github.com/MrWong99/soelive/internal/report/mock"
	"github.com/MrWong99/soelive/internal/resilience"
)

var validAttendance = report.AttendanceData{StudentName: "Davi", RoughNotes: "notas"}

func TestFallbackRefiner_PrimarySucceeds(t *testing.T) {
	t.Parallel()

	primary := &reportmock.Refiner{Result: &report.RefinedContent{FormalReport: "primário"}}
	backup := &reportmock.Refiner{Result: &report.RefinedContent{FormalReport: "reserva"}}

	f := report.NewFallbackRefiner("gemini", primary, resilience.FallbackConfig{})
	f.AddFallback("openai", backup)

	rc, err := f.Refine(context.Background(), validAttendance)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if rc.FormalReport != "primário" {
		t.Errorf("FormalReport = %q, want primário", rc.FormalReport)
	}
	if backup.CallCount() != 0 {
		t.Errorf("backup called %d times, want 0", backup.CallCount())
	}
	if got := f.Names(); !slices.Equal(got, []string{"gemini", "openai"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestFallbackRefiner_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &reportmock.Refiner{Err: errors.New("quota exceeded")}
	backup := &reportmock.Refiner{Result: &report.RefinedContent{FormalReport: "reserva"}}

	f := report.NewFallbackRefiner("gemini", primary, resilience.FallbackConfig{})
	f.AddFallback("openai", backup)

	rc, err := f.Refine(context.Background(), validAttendance)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if rc.FormalReport != "reserva" {
		t.Errorf("FormalReport = %q, want reserva", rc.FormalReport)
	}
	if primary.CallCount() != 1 || backup.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), backup.CallCount())
	}
}

func TestFallbackRefiner_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &reportmock.Refiner{Err: errors.New("down")}
	backup := &reportmock.Refiner{Result: &report.RefinedContent{FormalReport: "ok"}}

	f := report.NewFallbackRefiner("gemini", primary, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1},
	})
	f.AddFallback("openai", backup)

	for range 3 {
		if _, err := f.Refine(context.Background(), validAttendance); err != nil {
			t.Fatalf("Refine: %v", err)
		}
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary called %d times, want 1 once its breaker opened", primary.CallCount())
	}
	if backup.CallCount() != 3 {
		t.Errorf("backup called %d times, want 3", backup.CallCount())
	}
}

func TestFallbackRefiner_AllFail(t *testing.T) {
	t.Parallel()

	errA := errors.New("a down")
	errB := errors.New("b down")
	f := report.NewFallbackRefiner("a", &reportmock.Refiner{Err: errA}, resilience.FallbackConfig{})
	f.AddFallback("b", &reportmock.Refiner{Err: errB})

	_, err := f.Refine(context.Background(), validAttendance)
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("error %v should carry both backend errors", err)
	}
}

func TestFallbackRefiner_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	primary := &reportmock.Refiner{Result: &report.RefinedContent{FormalReport: "x"}}
	f := report.NewFallbackRefiner("gemini", primary, resilience.FallbackConfig{})

	_, err := f.Refine(context.Background(), report.AttendanceData{StudentName: "Eva"})
	if !errors.Is(err, report.ErrInvalidAttendance) {
		t.Fatalf("error = %v, want ErrInvalidAttendance", err)
	}
	if primary.CallCount() != 0 {
		t.Error("backend must not be called for invalid input")
	}
}
