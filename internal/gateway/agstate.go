package gateway

import (
	"sync"

	"github.com/danmuck/hfpag/internal/indicators"
	"github.com/danmuck/hfpag/internal/procedure"
)

// AgState is the local phone state every peer answers from.
type AgState struct {
	mu       sync.RWMutex
	features procedure.AgFeatures
	status   indicators.IndicatorStatus
	operator string
}

func NewAgState(features procedure.AgFeatures, status indicators.IndicatorStatus, operator string) *AgState {
	return &AgState{features: features, status: status, operator: operator}
}

func (s *AgState) Features() procedure.AgFeatures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features
}

func (s *AgState) Status() indicators.IndicatorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus validates and stores one indicator value. It reports whether the
// value changed.
func (s *AgState) SetStatus(ind indicators.AgIndicator, value uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status.Get(ind)
	if err := s.status.Set(ind, value); err != nil {
		return false, err
	}
	return prev != value, nil
}

func (s *AgState) Operator() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator
}

func (s *AgState) SetOperator(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operator = name
}
