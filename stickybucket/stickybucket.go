// Package stickybucket persists experiment variation assignments so a user
// keeps the same variation across re-evaluations and sessions, even after
// weights change. Assignments are stored per identifying attribute
// (e.g. device id, logged-in user id) and merged at read time.
//
// Backends implement a small key-value contract; read and write failures
// are non-fatal to evaluation, which falls back to fresh hash bucketing.
package stickybucket

import (
	"context"
	"fmt"
)

// AssignmentsDocument holds the assignments recorded for one identifying
// attribute value. Assignment keys are "experimentKey__bucketVersion" and
// values are variation keys. Documents are created on first assignment and
// only ever gain entries.
type AssignmentsDocument struct {
	AttributeName  string            `json:"attributeName"`
	AttributeValue string            `json:"attributeValue"`
	Assignments    map[string]string `json:"assignments"`
}

// Key returns the storage key for an (attribute name, value) pair.
func Key(attributeName, attributeValue string) string {
	return attributeName + "||" + attributeValue
}

// AssignmentKey returns the per-experiment attribution key under which an
// assignment is stored. The bucket version lets an experiment invalidate
// old assignments without a new tracking key.
func AssignmentKey(experimentKey string, bucketVersion int) string {
	return fmt.Sprintf("%s__%d", experimentKey, bucketVersion)
}

// Service is the persistence contract for sticky assignments.
// Implementations must be safe for concurrent use.
type Service interface {
	// GetAssignments returns the document for one identifying attribute,
	// or nil if none has been written.
	GetAssignments(ctx context.Context, attributeName, attributeValue string) (*AssignmentsDocument, error)

	// SaveAssignments stores a document, replacing any previous one under
	// the same key.
	SaveAssignments(ctx context.Context, doc *AssignmentsDocument) error
}

// GetAllAssignments fetches documents for every identifying attribute
// present on the user. Backend errors for individual attributes are
// swallowed; missing documents are simply absent from the result.
func GetAllAssignments(ctx context.Context, svc Service, attributes map[string]string) map[string]*AssignmentsDocument {
	docs := make(map[string]*AssignmentsDocument, len(attributes))
	for name, value := range attributes {
		if value == "" {
			continue
		}
		doc, err := svc.GetAssignments(ctx, name, value)
		if err != nil || doc == nil {
			continue
		}
		docs[Key(name, value)] = doc
	}
	return docs
}

// Merge flattens documents into a single assignment map. Documents are
// applied in the order of the attributes slice, so a later document's entry
// wins for a shared experiment key ("most recent write wins" with the
// configured attribute order as the tiebreaker).
func Merge(docs map[string]*AssignmentsDocument, attributes []AttributeRef) map[string]string {
	merged := map[string]string{}
	for _, ref := range attributes {
		doc := docs[Key(ref.Name, ref.Value)]
		if doc == nil {
			continue
		}
		for k, v := range doc.Assignments {
			merged[k] = v
		}
	}
	return merged
}

// AttributeRef names an identifying attribute and its current value.
type AttributeRef struct {
	Name  string
	Value string
}
