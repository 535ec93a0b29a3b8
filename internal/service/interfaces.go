package service

import (
	"context"

	"github.com/amarkanday/experimentation-platform/internal/dto"
)

// AssignmentServicer defines the interface for assignment service operations
type AssignmentServicer interface {
	GetOrCreateAssignment(ctx context.Context, req *dto.AssignmentRequest) (*dto.AssignmentResponse, error)
}
