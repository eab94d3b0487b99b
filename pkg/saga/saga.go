// Package saga runs a short sequence of steps and undoes the completed ones when a later
// step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step is one unit of work. Compensate is optional.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga is an ordered list of steps.
type Saga struct {
	name  string
	steps []Step
}

func New(name string) *Saga {
	return &Saga{name: name}
}

func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// StepError reports the step that failed. It unwraps to the step's own error so callers
// can keep matching on it.
type StepError struct {
	Saga          string
	Step          string
	Index         int
	Err           error
	CompensateErr error
}

func (e *StepError) Error() string {
	if e.CompensateErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensateErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Execute runs the steps in order. On the first failure the completed steps are
// compensated in reverse order and a *StepError is returned.
func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			return &StepError{
				Saga:          s.name,
				Step:          step.Name,
				Index:         i,
				Err:           err,
				CompensateErr: s.compensate(ctx, i),
			}
		}
	}
	return nil
}

// Cause returns the failing step's error when err came from Execute, and err otherwise.
func Cause(err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}

func (s *Saga) compensate(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
