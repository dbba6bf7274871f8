package pgx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/crosscheck/internal/util"
	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/logger"
	"github.com/OFFIS-RIT/crosscheck/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

const findRelationshipsQuery = `
SELECT r.source_id, r.type, r.target_id
FROM graph_relationships r
WHERE EXISTS (
    SELECT 1 FROM unnest($1::text[]) AS t(term)
    WHERE strpos(lower(r.source_id), lower(t.term)) > 0
       OR strpos(lower(r.target_id), lower(t.term)) > 0
)
AND r.type <> ALL($2::text[])
ORDER BY r.id`

const insertNodesQuery = `
INSERT INTO graph_nodes (id)
SELECT unnest($1::text[])
ON CONFLICT (id) DO NOTHING`

const insertRelationshipsQuery = `
INSERT INTO graph_relationships (source_id, target_id, type)
SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
ON CONFLICT (source_id, target_id, type) DO NOTHING`

const tripleChunkSize = 500

// GraphDBStorage keeps the fact graph in two PostgreSQL tables, one for
// nodes and one for typed relationships between them.
type GraphDBStorage struct {
	conn      pgxIConn
	closeFn   func()
	timeout   time.Duration
	chunkSize int
	dbLock    sync.Mutex
}

// NewGraphDBStorage connects a pool to databaseURL.
func NewGraphDBStorage(ctx context.Context, databaseURL string, timeout time.Duration) (*GraphDBStorage, error) {
	if databaseURL == "" {
		return nil, common.InvalidConfiguration("postgres store needs a database url")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	s := NewGraphDBStorageWithConnection(pool, timeout)
	s.closeFn = pool.Close
	return s, nil
}

// NewGraphDBStorageWithConnection creates a GraphDBStorage using an existing
// database connection.
func NewGraphDBStorageWithConnection(conn pgxIConn, timeout time.Duration) *GraphDBStorage {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GraphDBStorage{
		conn:      conn,
		timeout:   timeout,
		chunkSize: tripleChunkSize,
	}
}

// FindRelationships implements store.FactStore.
func (s *GraphDBStorage) FindRelationships(
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

	rows, err := s.conn.Query(qCtx, findRelationshipsQuery, terms, excludeTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	triples := make([]common.Triple, 0)
	for rows.Next() {
		var t common.Triple
		if err := rows.Scan(&t.Subject, &t.Relationship, &t.Object); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
		}
		triples = append(triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	return triples, nil
}

// SaveTriples implements store.FactWriter. Triples are written in windows
// of bulk inserts inside one transaction. Nodes are created on demand and
// relationships that already exist are skipped. It returns the number of
// relationships inserted.
func (s *GraphDBStorage) SaveTriples(ctx context.Context, triples []common.Triple) (int, error) {
	valid := make([]common.Triple, 0, len(triples))
	for _, t := range triples {
		t = common.Triple{
			Subject:      util.SanitizePostgresText(t.Subject),
			Relationship: util.SanitizePostgresText(t.Relationship),
			Object:       util.SanitizePostgresText(t.Object),
		}
		if !store.ValidTriple(t) {
			logger.Warn("[Store] skipping incomplete triple", "triple", t.String())
			continue
		}
		valid = append(valid, t)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	err = store.ChunkRange(len(valid), s.chunkSize, func(start, end int) error {
		window := valid[start:end]
		nodes := make([]string, 0, 2*len(window))
		sources := make([]string, 0, len(window))
		targets := make([]string, 0, len(window))
		types := make([]string, 0, len(window))
		for _, t := range window {
			nodes = append(nodes, t.Subject, t.Object)
			sources = append(sources, t.Subject)
			targets = append(targets, t.Object)
			types = append(types, t.Relationship)
		}

		logger.Debug("[Store] saving triples", "count", len(window))
		if _, err := tx.Exec(ctx, insertNodesQuery, store.DedupeStrings(nodes)); err != nil {
			return fmt.Errorf("insert nodes: %w", err)
		}
		tag, err := tx.Exec(ctx, insertRelationshipsQuery, sources, targets, types)
		if err != nil {
			return fmt.Errorf("insert relationships: %w", err)
		}
		inserted += int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit triples: %w", err)
	}
	return inserted, nil
}

// Close releases the connection pool if the storage owns one.
func (s *GraphDBStorage) Close(context.Context) error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
