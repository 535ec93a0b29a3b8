package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amarkanday/experimentation-platform/internal/bucketing"
	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/dto"
	"github.com/amarkanday/experimentation-platform/internal/metrics"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

var (
	// ErrInvalidRequest is returned for missing or blank required fields
	ErrInvalidRequest = errors.New("invalid assignment request")

	// ErrExperimentNotFound is returned when the experiment key is unknown
	ErrExperimentNotFound = errors.New("experiment not found")
)

// AssignmentService resolves sticky variant assignments
type AssignmentService struct {
	experiments repository.ExperimentRepository
	assignments repository.AssignmentRepository
	engine      *bucketing.Engine
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
	log         *zap.Logger
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	experiments repository.ExperimentRepository,
	assignments repository.AssignmentRepository,
	engine *bucketing.Engine,
	m *metrics.Metrics,
	log *zap.Logger,
) *AssignmentService {
	return &AssignmentService{
		experiments: experiments,
		assignments: assignments,
		engine:      engine,
		metrics:     m,
		now:         time.Now,
		newID:       uuid.NewString,
		log:         log,
	}
}

// GetOrCreateAssignment returns the user's existing assignment, or buckets the user and persists a new
// one. Excluded users are never persisted. Losing a concurrent create is resolved by re-reading the
// winner's assignment.
func (s *AssignmentService) GetOrCreateAssignment(ctx context.Context, req *dto.AssignmentRequest) (*dto.AssignmentResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	experimentKey := strings.TrimSpace(req.ExperimentKey)
	if userID == "" || experimentKey == "" {
		return nil, fmt.Errorf("%w: user_id and experiment_key must not be empty", ErrInvalidRequest)
	}

	exp, err := s.experiments.GetByKey(ctx, experimentKey)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.ObserveAssignment(metrics.AssignmentNotFound)
		return nil, fmt.Errorf("%w: %s", ErrExperimentNotFound, experimentKey)
	}
	if err != nil {
		s.metrics.ObserveAssignment(metrics.AssignmentError)
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	existing, err := s.assignments.Get(ctx, userID, exp.ID)
	switch {
	case err == nil:
		s.metrics.ObserveAssignment(metrics.AssignmentExisting)
		return assignedResponse(existing, exp), nil
	case !errors.Is(err, repository.ErrNotFound):
		s.metrics.ObserveAssignment(metrics.AssignmentError)
		return nil, fmt.Errorf("failed to read assignment: %w", err)
	}

	if !exp.IsActive() {
		s.log.Debug("Experiment not active, excluding user",
			zap.String("experiment_key", exp.Key),
			zap.String("status", string(exp.Status)))
		s.metrics.ObserveAssignment(metrics.AssignmentExcluded)
		return excludedResponse(userID, exp), nil
	}

	decision, err := s.engine.Assign(userID, exp)
	if err != nil {
		s.metrics.ObserveAssignment(metrics.AssignmentError)
		return nil, fmt.Errorf("failed to bucket user: %w", err)
	}

	if decision.Excluded {
		s.metrics.ObserveAssignment(metrics.AssignmentExcluded)
		return excludedResponse(userID, exp), nil
	}

	now := s.now().UTC()
	assignment := &domain.Assignment{
		ID:            s.newID(),
		UserID:        userID,
		ExperimentID:  exp.ID,
		ExperimentKey: exp.Key,
		Variant:       decision.Variant,
		CreatedAt:     now,
		Context:       req.Context,
		ExpiresAt:     domain.ExpiryFor(now),
	}

	err = s.assignments.Create(ctx, assignment)
	if errors.Is(err, repository.ErrAlreadyExists) {
		s.log.Info("Lost assignment race, reading winner",
			zap.String("user_id", userID),
			zap.String("experiment_id", exp.ID))

		winner, readErr := s.assignments.Get(ctx, userID, exp.ID)
		if readErr != nil {
			s.metrics.ObserveAssignment(metrics.AssignmentError)
			return nil, fmt.Errorf("failed to read assignment after conflict: %w", readErr)
		}
		s.metrics.ObserveAssignment(metrics.AssignmentRaceLost)
		return assignedResponse(winner, exp), nil
	}
	if err != nil {
		s.metrics.ObserveAssignment(metrics.AssignmentError)
		return nil, fmt.Errorf("failed to store assignment: %w", err)
	}

	s.log.Info("Assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("user_id", userID),
		zap.String("experiment_key", exp.Key),
		zap.String("variant", assignment.Variant))
	s.metrics.ObserveAssignment(metrics.AssignmentCreated)

	return assignedResponse(assignment, exp), nil
}

func assignedResponse(a *domain.Assignment, exp *domain.ExperimentConfig) *dto.AssignmentResponse {
	variant := a.Variant
	return &dto.AssignmentResponse{
		UserID:        a.UserID,
		ExperimentKey: exp.Key,
		ExperimentID:  exp.ID,
		Variant:       &variant,
		AssignmentID:  a.ID,
		Excluded:      false,
	}
}

func excludedResponse(userID string, exp *domain.ExperimentConfig) *dto.AssignmentResponse {
	return &dto.AssignmentResponse{
		UserID:        userID,
		ExperimentKey: exp.Key,
		ExperimentID:  exp.ID,
		Variant:       nil,
		Excluded:      true,
	}
}
