package grounding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/store"
)

// Retriever fetches the facts that touch a set of entities.
type Retriever struct {
	store store.FactStore
}

// NewRetriever creates a Retriever reading from s.
func NewRetriever(s store.FactStore) (*Retriever, error) {
	if s == nil {
		return nil, common.InvalidConfiguration("fact retriever needs a store")
	}
	return &Retriever{store: s}, nil
}

// RetrieveFacts returns every relationship touching a node whose id contains
// one of entities, case-insensitively. Structural HAS_ENTITY edges are left
// out. An empty entity set returns no facts without querying the store.
func (r *Retriever) RetrieveFacts(ctx context.Context, entities common.EntitySet) ([]common.Triple, error) {
	if len(entities) == 0 {
		return []common.Triple{}, nil
	}

	triples, err := r.store.FindRelationships(ctx, entities, []string{common.StructuralRelationship})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, common.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
		return nil, err
	}

	out := make([]common.Triple, 0, len(triples))
	for _, t := range triples {
		if t.Relationship == common.StructuralRelationship {
			continue
		}
		out = append(out, t)
	}
	logger.Debug("[Grounding] retrieved facts", "entities", len(entities), "facts", len(out))
	return out, nil
}

// Corroborate returns the facts whose subject and object are both mentioned
// in answer, compared case-insensitively.
func Corroborate(answer string, facts []common.Triple) []common.Triple {
	text := strings.ToLower(answer)
	out := make([]common.Triple, 0)
	for _, f := range facts {
		if f.Subject == "" || f.Object == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(f.Subject)) && strings.Contains(text, strings.ToLower(f.Object)) {
			out = append(out, f)
		}
	}
	return out
}
