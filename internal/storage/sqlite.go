package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/snipvault/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// dsn adds the driver's foreign key parameter, so every connection the pool
// opens enforces the embeddings cascade
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + foreignKeysParam
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Snippet operations

const snippetColumns = `id, title, content, language, description, tags, created_at, updated_at`

func scanSnippet(row scanner) (*types.Snippet, error) {
	var s types.Snippet
	var description, tags sql.NullString
	err := row.Scan(&s.ID, &s.Title, &s.Content, &s.Language, &description, &tags, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	s.Tags = tags.String
	return &s, nil
}

func querySnippets(ctx context.Context, q querier, query string, args ...any) ([]*types.Snippet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snippets := make([]*types.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		snippets = append(snippets, s)
	}
	return snippets, rows.Err()
}

func createSnippet(ctx context.Context, q querier, snippet *types.Snippet) error {
	if err := snippet.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO snippets (title, content, language, description, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		snippet.Title, snippet.Content, snippet.Language,
		nullable(snippet.Description), nullable(snippet.Tags), now, now)
	if err != nil {
		return fmt.Errorf("failed to create snippet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	snippet.ID = id
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	return nil
}

func getSnippet(ctx context.Context, q querier, id int64) (*types.Snippet, error) {
	row := q.QueryRowContext(ctx, `SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id)
	s, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func listSnippets(ctx context.Context, q querier) ([]*types.Snippet, error) {
	return querySnippets(ctx, q, `
		SELECT `+snippetColumns+`
		FROM snippets
		ORDER BY updated_at DESC, id DESC
	`)
}

func listSnippetsWithoutEmbedding(ctx context.Context, q querier) ([]*types.Snippet, error) {
	return querySnippets(ctx, q, `
		SELECT `+snippetColumns+`
		FROM snippets
		WHERE NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.snippet_id = snippets.id)
		ORDER BY id
	`)
}

func updateSnippet(ctx context.Context, q querier, snippet *types.Snippet) error {
	if err := snippet.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE snippets
		SET title = ?, content = ?, language = ?, description = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		snippet.Title, snippet.Content, snippet.Language,
		nullable(snippet.Description), nullable(snippet.Tags), now, snippet.ID)
	if err != nil {
		return fmt.Errorf("failed to update snippet: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	snippet.UpdatedAt = now
	return nil
}

func deleteSnippet(ctx context.Context, q querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snippet: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// likePattern escapes LIKE wildcards so query matches literally
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func searchSnippets(ctx context.Context, q querier, query string, limit int) ([]*types.Snippet, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	pattern := likePattern(query)
	return querySnippets(ctx, q, `
		SELECT `+snippetColumns+`
		FROM snippets
		WHERE title LIKE ? ESCAPE '\'
		   OR content LIKE ? ESCAPE '\'
		   OR description LIKE ? ESCAPE '\'
		   OR tags LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, pattern, pattern, limit)
}

func (s *SQLiteStorage) CreateSnippet(ctx context.Context, snippet *types.Snippet) error {
	return createSnippet(ctx, s.db, snippet)
}

func (s *SQLiteStorage) GetSnippet(ctx context.Context, id int64) (*types.Snippet, error) {
	return getSnippet(ctx, s.db, id)
}

// ListSnippets returns all snippets, most recently updated first
func (s *SQLiteStorage) ListSnippets(ctx context.Context) ([]*types.Snippet, error) {
	return listSnippets(ctx, s.db)
}

// ListSnippetsWithoutEmbedding returns snippets that have no embedding record
// of any version
func (s *SQLiteStorage) ListSnippetsWithoutEmbedding(ctx context.Context) ([]*types.Snippet, error) {
	return listSnippetsWithoutEmbedding(ctx, s.db)
}

func (s *SQLiteStorage) UpdateSnippet(ctx context.Context, snippet *types.Snippet) error {
	return updateSnippet(ctx, s.db, snippet)
}

// DeleteSnippet removes a snippet; its embedding goes with it
func (s *SQLiteStorage) DeleteSnippet(ctx context.Context, id int64) error {
	return deleteSnippet(ctx, s.db, id)
}

// SearchSnippets matches query as a case-insensitive substring of title,
// content, description or tags. limit <= 0 returns every match.
func (s *SQLiteStorage) SearchSnippets(ctx context.Context, query string, limit int) ([]*types.Snippet, error) {
	return searchSnippets(ctx, s.db, query, limit)
}

// Embedding operations

func upsertEmbedding(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (snippet_id, embedding, model_version, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(snippet_id) DO UPDATE SET
			embedding = excluded.embedding,
			model_version = excluded.model_version,
			created_at = excluded.created_at
	`
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, query,
		embedding.SnippetID, EncodeVector(embedding.Vector), embedding.ModelVersion, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func scanEmbedding(row scanner) (*Embedding, error) {
	var e Embedding
	var blob []byte
	if err := row.Scan(&e.SnippetID, &blob, &e.ModelVersion, &e.CreatedAt); err != nil {
		return nil, err
	}
	vector, err := DecodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("snippet %d: %w", e.SnippetID, err)
	}
	e.Vector = vector
	return &e, nil
}

func getEmbedding(ctx context.Context, q querier, snippetID int64) (*Embedding, error) {
	row := q.QueryRowContext(ctx, `
		SELECT snippet_id, embedding, model_version, created_at
		FROM embeddings
		WHERE snippet_id = ?
	`, snippetID)
	e, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func listEmbeddings(ctx context.Context, q querier) ([]*Embedding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT snippet_id, embedding, model_version, created_at
		FROM embeddings
		ORDER BY snippet_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	embeddings := make([]*Embedding, 0)
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

func deleteEmbedding(ctx context.Context, q querier, snippetID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM embeddings WHERE snippet_id = ?`, snippetID)
	return err
}

// UpsertEmbedding stores the vector for a snippet, replacing any previous
// vector and version tag
func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return upsertEmbedding(ctx, s.db, embedding)
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, snippetID int64) (*Embedding, error) {
	return getEmbedding(ctx, s.db, snippetID)
}

// ListEmbeddings returns every record regardless of model version
func (s *SQLiteStorage) ListEmbeddings(ctx context.Context) ([]*Embedding, error) {
	return listEmbeddings(ctx, s.db)
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, snippetID int64) error {
	return deleteEmbedding(ctx, s.db, snippetID)
}

// Status operations

func getStatus(ctx context.Context, q querier, modelVersion string) (*Status, error) {
	status := &Status{}

	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM snippets),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM embeddings WHERE model_version = ?),
			(SELECT COUNT(*) FROM snippets s
			 WHERE NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.snippet_id = s.id))
	`, modelVersion).Scan(
		&status.SnippetsCount, &status.EmbeddingsCount,
		&status.CurrentEmbeddings, &status.MissingEmbeddings,
	)
	if err != nil {
		return nil, err
	}
	status.StaleEmbeddings = status.EmbeddingsCount - status.CurrentEmbeddings

	var version string
	err = q.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1`).Scan(&version)
	if err == nil {
		status.SchemaVersion = version
	}

	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

// GetStatus counts snippets and embeddings relative to modelVersion
func (s *SQLiteStorage) GetStatus(ctx context.Context, modelVersion string) (*Status, error) {
	return getStatus(ctx, s.db, modelVersion)
}

// sqliteTx wraps a SQL transaction. Every operation runs on the transaction;
// the pool has one connection, so touching the *sql.DB here would deadlock.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) CreateSnippet(ctx context.Context, snippet *types.Snippet) error {
	return createSnippet(ctx, t.tx, snippet)
}

func (t *sqliteTx) GetSnippet(ctx context.Context, id int64) (*types.Snippet, error) {
	return getSnippet(ctx, t.tx, id)
}

func (t *sqliteTx) ListSnippets(ctx context.Context) ([]*types.Snippet, error) {
	return listSnippets(ctx, t.tx)
}

func (t *sqliteTx) ListSnippetsWithoutEmbedding(ctx context.Context) ([]*types.Snippet, error) {
	return listSnippetsWithoutEmbedding(ctx, t.tx)
}

func (t *sqliteTx) UpdateSnippet(ctx context.Context, snippet *types.Snippet) error {
	return updateSnippet(ctx, t.tx, snippet)
}

func (t *sqliteTx) DeleteSnippet(ctx context.Context, id int64) error {
	return deleteSnippet(ctx, t.tx, id)
}

func (t *sqliteTx) SearchSnippets(ctx context.Context, query string, limit int) ([]*types.Snippet, error) {
	return searchSnippets(ctx, t.tx, query, limit)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return upsertEmbedding(ctx, t.tx, embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, snippetID int64) (*Embedding, error) {
	return getEmbedding(ctx, t.tx, snippetID)
}

func (t *sqliteTx) ListEmbeddings(ctx context.Context) ([]*Embedding, error) {
	return listEmbeddings(ctx, t.tx)
}

func (t *sqliteTx) DeleteEmbedding(ctx context.Context, snippetID int64) error {
	return deleteEmbedding(ctx, t.tx, snippetID)
}

func (t *sqliteTx) GetStatus(ctx context.Context, modelVersion string) (*Status, error) {
	return getStatus(ctx, t.tx, modelVersion)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
