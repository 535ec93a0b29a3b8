package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validExperiment() *ExperimentConfig {
	return &ExperimentConfig{
		ID:                "exp-1",
		Key:               "checkout_button",
		Name:              "Checkout button color",
		Status:            ExperimentStatusActive,
		TrafficAllocation: 1.0,
		Variants: []VariantConfig{
			{Key: "control", Allocation: 0.5},
			{Key: "treatment", Allocation: 0.5},
		},
	}
}

func TestExperimentConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validExperiment().Validate())
}

func TestExperimentConfig_Validate_FloatingTolerance(t *testing.T) {
	exp := validExperiment()
	exp.Variants = []VariantConfig{
		{Key: "a", Allocation: 0.1},
		{Key: "b", Allocation: 0.2},
		{Key: "c", Allocation: 0.7},
	}

	assert.NoError(t, exp.Validate())
}

func TestExperimentConfig_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *ExperimentConfig)
	}{
		{"no variants", func(e *ExperimentConfig) { e.Variants = nil }},
		{"allocations do not sum to one", func(e *ExperimentConfig) { e.Variants[1].Allocation = 0.4 }},
		{"traffic above one", func(e *ExperimentConfig) { e.TrafficAllocation = 1.5 }},
		{"negative traffic", func(e *ExperimentConfig) { e.TrafficAllocation = -0.1 }},
		{"duplicate variant", func(e *ExperimentConfig) { e.Variants[1].Key = "control" }},
		{"unknown status", func(e *ExperimentConfig) { e.Status = "running" }},
		{"missing key", func(e *ExperimentConfig) { e.Key = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := validExperiment()
			tt.mutate(exp)

			err := exp.Validate()

			assert.ErrorIs(t, err, ErrInvalidExperiment)
		})
	}
}

func TestAssignment_IsExpired(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Assignment{CreatedAt: created, ExpiresAt: ExpiryFor(created)}

	assert.False(t, a.IsExpired(created.Add(89*24*time.Hour)))
	assert.True(t, a.IsExpired(created.Add(90*24*time.Hour)))
	assert.False(t, (&Assignment{}).IsExpired(time.Now()))
}
