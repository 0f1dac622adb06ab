package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage keeps every collection in shared Postgres tables using the pgvector extension.
type Storage struct {
	db *sqlx.DB
}

func Open(dsn string) (*Storage, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func New(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements that report "already exists" are skipped.
func (s *Storage) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range splitStatements(string(content)) {
			if _, err := s.db.ExecContext(ctx, q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func splitStatements(content string) []string {
	var out []string
	for _, q := range strings.Split(content, ";") {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

type collectionRow struct {
	Name      string `db:"name"`
	Dimension int    `db:"dimension"`
	Distance  string `db:"distance"`
}

type pointRow struct {
	ID         string  `db:"id"`
	DocumentID string  `db:"document_id"`
	Text       string  `db:"text"`
	ChunkIndex int     `db:"chunk_index"`
	Strategy   string  `db:"strategy"`
	Score      float64 `db:"score"`
}

func (r pointRow) scored() domain.ScoredPoint {
	return domain.ScoredPoint{
		ID:      r.ID,
		Score:   r.Score,
		Payload: domain.Payload{DocumentID: r.DocumentID, Text: r.Text, ChunkIndex: r.ChunkIndex, Strategy: r.Strategy},
	}
}

func (s *Storage) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `SELECT name FROM docqa_collections ORDER BY name`)
	return names, err
}

func (s *Storage) CreateCollection(ctx context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", c.Dimension)
	}
	if !vectorstore.ValidDistance(c.Distance) {
		return fmt.Errorf("unsupported distance %q", c.Distance)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO docqa_collections (name, dimension, distance, ctime) VALUES ($1, $2, $3, $4)`,
		c.Name, c.Dimension, string(c.Distance), time.Now().Unix())
	if isConflict(err) {
		return domain.ErrCollectionExists
	}
	return err
}

func (s *Storage) schema(ctx context.Context, name string) (domain.Collection, error) {
	var row collectionRow
	err := s.db.GetContext(ctx, &row, `SELECT name, dimension, distance FROM docqa_collections WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Collection{}, fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	if err != nil {
		return domain.Collection{}, err
	}
	return domain.Collection{Name: row.Name, Dimension: row.Dimension, Distance: domain.Distance(row.Distance)}, nil
}

// Upsert writes the batch in one transaction.
func (s *Storage) Upsert(ctx context.Context, name string, points []domain.VectorPoint) error {
	c, err := s.schema(ctx, name)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != c.Dimension {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(p.Vector), c.Dimension)
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	const query = `
		INSERT INTO docqa_points (collection, id, document_id, text, chunk_index, strategy, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (collection, id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			text = EXCLUDED.text,
			chunk_index = EXCLUDED.chunk_index,
			strategy = EXCLUDED.strategy,
			embedding = EXCLUDED.embedding
	`
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, query, name, p.ID, p.Payload.DocumentID, p.Payload.Text, p.Payload.ChunkIndex, p.Payload.Strategy, pgvector.NewVector(p.Vector)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, limit int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	c, err := s.schema(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), c.Dimension)
	}
	var rows []pointRow
	if err := s.db.SelectContext(ctx, &rows, searchQuery(c.Distance), name, pgvector.NewVector(vector), limit); err != nil {
		return nil, err
	}
	out := make([]domain.ScoredPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.scored())
	}
	return out, nil
}

// Scan returns up to limit points ordered by document and chunk with a zero score.
func (s *Storage) Scan(ctx context.Context, name string, limit int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	if _, err := s.schema(ctx, name); err != nil {
		return nil, err
	}
	var rows []pointRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, document_id, text, chunk_index, strategy, 0::float8 AS score
		FROM docqa_points
		WHERE collection = $1
		ORDER BY document_id, strategy, chunk_index
		LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScoredPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.scored())
	}
	return out, nil
}

// searchQuery orders by the pgvector distance operator of the metric and
// converts the distance into a higher-is-closer score.
func searchQuery(distance domain.Distance) string {
	var op, score string
	switch distance {
	case domain.DistanceDot:
		op, score = "<#>", "-(embedding <#> $2)"
	case domain.DistanceEuclidean:
		op, score = "<->", "1 / (1 + (embedding <-> $2))"
	default:
		op, score = "<=>", "1 - (embedding <=> $2)"
	}
	return fmt.Sprintf(`
		SELECT id, document_id, text, chunk_index, strategy, %s AS score
		FROM docqa_points
		WHERE collection = $1
		ORDER BY embedding %s $2, id
		LIMIT $3
	`, score, op)
}

func (s *Storage) DeleteDocument(ctx context.Context, name, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM docqa_points WHERE collection = $1 AND document_id = $2`, name, documentID)
	return err
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	if _, err := s.schema(ctx, name); err != nil {
		return 0, err
	}
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM docqa_points WHERE collection = $1`, name)
	return n, err
}

func isConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
