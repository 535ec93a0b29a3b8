package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/mock"

	"github.com/amarkanday/experimentation-platform/internal/domain"
	"github.com/amarkanday/experimentation-platform/internal/repository"
)

// memoryExperiments is a map-backed ExperimentRepository that counts lookups
type memoryExperiments struct {
	mu      sync.Mutex
	byID    map[string]*domain.ExperimentConfig
	err     error
	lookups int
}

func newMemoryExperiments(exps ...*domain.ExperimentConfig) *memoryExperiments {
	m := &memoryExperiments{byID: make(map[string]*domain.ExperimentConfig)}
	for _, e := range exps {
		m.byID[e.ID] = e
	}
	return m
}

func (m *memoryExperiments) GetByID(_ context.Context, id string) (*domain.ExperimentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (m *memoryExperiments) GetByKey(_ context.Context, key string) (*domain.ExperimentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byID {
		if e.Key == key {
			return e, nil
		}
	}
	return nil, repository.ErrNotFound
}

// memoryAssignments is a map-backed AssignmentRepository
type memoryAssignments struct {
	mu    sync.Mutex
	items map[string]*domain.Assignment
	err   error
}

func newMemoryAssignments(as ...*domain.Assignment) *memoryAssignments {
	m := &memoryAssignments{items: make(map[string]*domain.Assignment)}
	for _, a := range as {
		m.items[a.UserID+"|"+a.ExperimentID] = a
	}
	return m
}

func (m *memoryAssignments) Get(_ context.Context, userID, experimentID string) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.items[userID+"|"+experimentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (m *memoryAssignments) Create(_ context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.UserID + "|" + a.ExperimentID
	if _, ok := m.items[key]; ok {
		return repository.ErrAlreadyExists
	}
	m.items[key] = a
	return nil
}

// memoryAggregations is an atomic in-memory AggregationRepository
type memoryAggregations struct {
	mu      sync.Mutex
	records map[string]*domain.AggregationRecord
	users   map[string]map[string]struct{}
}

func newMemoryAggregations() *memoryAggregations {
	return &memoryAggregations{
		records: make(map[string]*domain.AggregationRecord),
		users:   make(map[string]map[string]struct{}),
	}
}

func (m *memoryAggregations) Increment(_ context.Context, pk, sk, userID string) (*domain.AggregationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pk + "|" + sk
	rec, ok := m.records[key]
	if !ok {
		rec = &domain.AggregationRecord{PartitionKey: pk, SortKey: sk}
		m.records[key] = rec
		m.users[key] = make(map[string]struct{})
	}
	rec.EventCount++
	if userID != "" {
		m.users[key][userID] = struct{}{}
	}
	rec.UniqueUsers = int64(len(m.users[key]))

	out := *rec
	return &out, nil
}

func (m *memoryAggregations) get(pk, sk string) (domain.AggregationRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[pk+"|"+sk]
	if !ok {
		return domain.AggregationRecord{}, false
	}
	return *rec, true
}

// MockAggregationRepository is a mock implementation of repository.AggregationRepository
type MockAggregationRepository struct {
	mock.Mock
}

func (m *MockAggregationRepository) Increment(ctx context.Context, pk, sk, userID string) (*domain.AggregationRecord, error) {
	args := m.Called(ctx, pk, sk, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AggregationRecord), args.Error(1)
}

// MockDeadLetterPublisher is a mock implementation of queue.DeadLetterPublisher
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishDeadLetters(ctx context.Context, letters []domain.DeadLetter) (int, error) {
	args := m.Called(ctx, letters)
	return args.Int(0), args.Error(1)
}

// MockArchiver is a mock implementation of Archiver
type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, events []domain.EnrichedEvent) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func testExperiment() *domain.ExperimentConfig {
	return &domain.ExperimentConfig{
		ID:     "789",
		Key:    "checkout_button",
		Name:   "Checkout button color",
		Status: domain.ExperimentStatusActive,
		Variants: []domain.VariantConfig{
			{Key: "control", Allocation: 0.5},
			{Key: "treatment", Allocation: 0.5},
		},
		TrafficAllocation: 1.0,
	}
}

func eventPayload(eventID, userID, experimentID string) map[string]interface{} {
	p := map[string]interface{}{
		"event_id":   eventID,
		"user_id":    userID,
		"event_type": "conversion",
		"timestamp":  "2025-01-15T10:30:00Z",
	}
	if experimentID != "" {
		p["experiment_id"] = experimentID
	}
	return p
}

func encodeRecord(seq string, payload interface{}) domain.StreamRecord {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return domain.StreamRecord{
		SequenceNumber: seq,
		Data:           base64.StdEncoding.EncodeToString(raw),
	}
}

func seq(i int) string {
	return fmt.Sprintf("%d", i)
}
