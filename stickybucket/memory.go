package stickybucket

import (
	"context"
	"sync"
)

// MemoryService is an in-process Service for tests, CLIs, and hosts without
// durable storage. Assignments survive only for the process lifetime.
type MemoryService struct {
	mu   sync.RWMutex
	docs map[string]*AssignmentsDocument
}

// NewMemoryService creates an empty in-memory service.
func NewMemoryService() *MemoryService {
	return &MemoryService{docs: map[string]*AssignmentsDocument{}}
}

func (m *MemoryService) GetAssignments(_ context.Context, attributeName, attributeValue string) (*AssignmentsDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[Key(attributeName, attributeValue)]
	if !ok {
		return nil, nil
	}
	// Copy so callers cannot mutate stored state.
	out := &AssignmentsDocument{
		AttributeName:  doc.AttributeName,
		AttributeValue: doc.AttributeValue,
		Assignments:    make(map[string]string, len(doc.Assignments)),
	}
	for k, v := range doc.Assignments {
		out.Assignments[k] = v
	}
	return out, nil
}

func (m *MemoryService) SaveAssignments(_ context.Context, doc *AssignmentsDocument) error {
	if doc == nil {
		return nil
	}
	stored := &AssignmentsDocument{
		AttributeName:  doc.AttributeName,
		AttributeValue: doc.AttributeValue,
		Assignments:    make(map[string]string, len(doc.Assignments)),
	}
	for k, v := range doc.Assignments {
		stored.Assignments[k] = v
	}
	m.mu.Lock()
	m.docs[Key(doc.AttributeName, doc.AttributeValue)] = stored
	m.mu.Unlock()
	return nil
}
