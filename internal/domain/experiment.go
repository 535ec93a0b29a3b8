package domain

import (
	"errors"
	"fmt"
	"math"
)

// ExperimentStatus is the lifecycle state of an experiment
type ExperimentStatus string

const (
	ExperimentStatusDraft     ExperimentStatus = "draft"
	ExperimentStatusActive    ExperimentStatus = "active"
	ExperimentStatusPaused    ExperimentStatus = "paused"
	ExperimentStatusCompleted ExperimentStatus = "completed"
	ExperimentStatusArchived  ExperimentStatus = "archived"
)

// allocationTolerance bounds floating point drift when summing variant allocations
const allocationTolerance = 1e-6

// ErrInvalidExperiment is returned when an experiment configuration fails validation
var ErrInvalidExperiment = errors.New("invalid experiment configuration")

// VariantConfig is one treatment arm of an experiment
type VariantConfig struct {
	Key        string  `json:"key" dynamodbav:"key"`
	Allocation float64 `json:"allocation" dynamodbav:"allocation"`
}

// ExperimentConfig is the read-only experiment definition used for bucketing and enrichment
type ExperimentConfig struct {
	ID                string           `json:"id" dynamodbav:"experiment_id"`
	Key               string           `json:"key" dynamodbav:"experiment_key"`
	Name              string           `json:"name" dynamodbav:"name"`
	Status            ExperimentStatus `json:"status" dynamodbav:"status"`
	Variants          []VariantConfig  `json:"variants" dynamodbav:"variants"`
	TrafficAllocation float64          `json:"traffic_allocation" dynamodbav:"traffic_allocation"`
}

// IsActive reports whether new users may be assigned into the experiment
func (e *ExperimentConfig) IsActive() bool {
	return e.Status == ExperimentStatusActive
}

// TotalAllocation returns the sum of all variant allocations
func (e *ExperimentConfig) TotalAllocation() float64 {
	total := 0.0
	for _, v := range e.Variants {
		total += v.Allocation
	}
	return total
}

// Validate checks the configuration invariants. It is applied when an experiment is loaded
// from a store, never during bucketing.
func (e *ExperimentConfig) Validate() error {
	if e.ID == "" || e.Key == "" {
		return fmt.Errorf("%w: id and key are required", ErrInvalidExperiment)
	}

	switch e.Status {
	case ExperimentStatusDraft, ExperimentStatusActive, ExperimentStatusPaused,
		ExperimentStatusCompleted, ExperimentStatusArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidExperiment, e.Status)
	}

	if e.TrafficAllocation < 0 || e.TrafficAllocation > 1 {
		return fmt.Errorf("%w: traffic_allocation %v outside [0,1]", ErrInvalidExperiment, e.TrafficAllocation)
	}

	if len(e.Variants) == 0 {
		return fmt.Errorf("%w: experiment %s has no variants", ErrInvalidExperiment, e.Key)
	}

	seen := make(map[string]struct{}, len(e.Variants))
	for _, v := range e.Variants {
		if v.Key == "" {
			return fmt.Errorf("%w: variant key is required", ErrInvalidExperiment)
		}
		if _, ok := seen[v.Key]; ok {
			return fmt.Errorf("%w: duplicate variant key %q", ErrInvalidExperiment, v.Key)
		}
		seen[v.Key] = struct{}{}

		if v.Allocation < 0 || v.Allocation > 1 {
			return fmt.Errorf("%w: variant %s allocation %v outside [0,1]", ErrInvalidExperiment, v.Key, v.Allocation)
		}
	}

	if total := e.TotalAllocation(); math.Abs(total-1.0) > allocationTolerance {
		return fmt.Errorf("%w: variant allocations sum to %v, expected 1.0", ErrInvalidExperiment, total)
	}

	return nil
}
