package store

import (
	"context"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
)

// FactStore reads facts from a knowledge graph built from the documents.
type FactStore interface {
	// FindRelationships returns every relationship that touches a node whose
	// id contains one of terms, compared case-insensitively. Relationships
	// whose type is listed in excludeTypes are left out. Results keep the
	// store's order.
	FindRelationships(ctx context.Context, terms []string, excludeTypes []string) ([]common.Triple, error)
}

// FactWriter seeds a knowledge graph with facts.
type FactWriter interface {
	SaveTriples(ctx context.Context, triples []common.Triple) (int, error)
}

// Store is a FactStore that can also be written to and closed.
type Store interface {
	FactStore
	FactWriter
	Close(ctx context.Context) error
}

// ValidTriple reports whether t has all three parts set.
func ValidTriple(t common.Triple) bool {
	return t.Subject != "" && t.Relationship != "" && t.Object != ""
}
