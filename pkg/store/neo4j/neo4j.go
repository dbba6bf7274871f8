package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const findRelationshipsQuery = `
MATCH (n)-[r]->(m)
WHERE ANY(term IN $terms WHERE
    toLower(n.id) CONTAINS toLower(term) OR
    toLower(m.id) CONTAINS toLower(term))
  AND NOT type(r) IN $excluded
RETURN n.id AS source, type(r) AS type, m.id AS target`

// GraphStorage reads and writes facts in a Neo4j database whose nodes carry
// their name in the id property.
type GraphStorage struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewGraphStorageParams configures a connection to Neo4j.
type NewGraphStorageParams struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
}

// NewGraphStorage connects to Neo4j and verifies the connection.
func NewGraphStorage(ctx context.Context, params NewGraphStorageParams) (*GraphStorage, error) {
	if params.URI == "" {
		return nil, common.InvalidConfiguration("neo4j store needs a uri")
	}
	if params.User == "" {
		params.User = "neo4j"
	}
	if params.Database == "" {
		params.Database = "neo4j"
	}
	if params.Timeout <= 0 {
		params.Timeout = 30 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(params.URI, neo4j.BasicAuth(params.User, params.Password, ""))
	if err != nil {
		return nil, common.InvalidConfiguration("neo4j: %v", err)
	}

	vCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	logger.Info("[Store] connected to neo4j", "uri", params.URI, "database", params.Database)
	return &GraphStorage{
		driver:   driver,
		database: params.Database,
		timeout:  params.Timeout,
	}, nil
}

// FindRelationships implements store.FactStore.
func (s *GraphStorage) FindRelationships(
	ctx context.Context,
	terms []string,
	excludeTypes []string,
) ([]common.Triple, error) {
	terms = store.DedupeStrings(terms)
	if len(terms) == 0 {
		return nil, nil
	}
	if excludeTypes == nil {
		excludeTypes = []string{}
	}

	qCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(qCtx, s.driver, findRelationshipsQuery,
		map[string]any{"terms": terms, "excluded": excludeTypes},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}

	triples := make([]common.Triple, 0, len(result.Records))
	for _, record := range result.Records {
		t, err := recordToTriple(record)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
		triples = append(triples, t)
	}
	return triples, nil
}

// SaveTriples implements store.FactWriter using MERGE so repeated facts are
// stored once.
func (s *GraphStorage) SaveTriples(ctx context.Context, triples []common.Triple) (int, error) {
	created := 0
	for _, t := range triples {
		if !store.ValidTriple(t) {
			logger.Warn("[Store] skipping incomplete triple", "triple", t.String())
			continue
		}
		relType := RelationshipType(t.Relationship)
		if relType == "" {
			logger.Warn("[Store] skipping triple with unusable relationship", "triple", t.String())
			continue
		}

		query := fmt.Sprintf(
			"MERGE (a:Entity {id: $subject}) MERGE (b:Entity {id: $object}) MERGE (a)-[:`%s`]->(b)",
			relType,
		)
		wCtx, cancel := context.WithTimeout(ctx, s.timeout)
		result, err := neo4j.ExecuteQuery(wCtx, s.driver, query,
			map[string]any{"subject": t.Subject, "object": t.Object},
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(s.database),
			neo4j.ExecuteQueryWithWritersRouting(),
		)
		cancel()
		if err != nil {
			return created, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
		created += result.Summary.Counters().RelationshipsCreated()
	}
	return created, nil
}

// Close closes the driver.
func (s *GraphStorage) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

var relTypeInvalid = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// RelationshipType turns a free-form relationship name into a Cypher
// relationship type: upper case, words joined by underscores.
func RelationshipType(name string) string {
	t := relTypeInvalid.ReplaceAllString(strings.TrimSpace(name), "_")
	return strings.ToUpper(strings.Trim(t, "_"))
}

func recordToTriple(record *neo4j.Record) (common.Triple, error) {
	source, _, err := neo4j.GetRecordValue[string](record, "source")
	if err != nil {
		return common.Triple{}, err
	}
	relType, _, err := neo4j.GetRecordValue[string](record, "type")
	if err != nil {
		return common.Triple{}, err
	}
	target, _, err := neo4j.GetRecordValue[string](record, "target")
	if err != nil {
		return common.Triple{}, err
	}
	return common.Triple{Subject: source, Relationship: relType, Object: target}, nil
}
