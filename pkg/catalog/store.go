// Package catalog keeps document records and cluster counters in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clusterfs/pkg/models"

	_ "modernc.org/sqlite"
)

// Store manages documents and cluster states in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new catalog store with the given database path.
// Transactions are opened with BEGIN IMMEDIATE so that counter updates from
// several processes sharing the file serialise on the write lock.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_txlock=immediate"
	}

	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}
	// A single connection keeps :memory: databases shared and pragmas applied.
	database.SetMaxOpenConns(1)

	ctx := context.Background()

	// Enable foreign keys
	if _, err := database.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrDatabaseError, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabaseError, err)
	}

	if _, err := database.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(context.Background(), Schema)
	if err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument inserts a document without an attachment.
func (s *Store) CreateDocument(ctx context.Context, kind, name string, attributes map[string]string) (*models.Document, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: kind is required", ErrInvalidDocument)
	}

	var attributesJSON []byte
	if len(attributes) > 0 {
		var err error
		attributesJSON, err = json.Marshal(attributes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to serialize attributes: %w", ErrDatabaseError, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (kind, name, attributes, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		kind, name, string(attributesJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	documentID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return &models.Document{
		ID:         documentID,
		Kind:       kind,
		Name:       name,
		Attributes: attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

const documentColumns = `id, kind, name, attributes, attachment_size, attachment_path,
	attachment_content_type, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		document       models.Document
		attributesJSON sql.NullString
	)
	err := row.Scan(&document.ID, &document.Kind, &document.Name, &attributesJSON,
		&document.AttachmentSize, &document.AttachmentPath, &document.AttachmentContentType,
		&document.CreatedAt, &document.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if attributesJSON.Valid && attributesJSON.String != "" {
		if err := json.Unmarshal([]byte(attributesJSON.String), &document.Attributes); err != nil {
			return nil, fmt.Errorf("%w: failed to parse attributes: %w", ErrDatabaseError, err)
		}
	}
	return &document, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, documentID int64) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	document, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		if errors.Is(err, ErrDatabaseError) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return document, nil
}

// ListDocuments lists documents of one kind, or all documents when kind is empty.
func (s *Store) ListDocuments(ctx context.Context, kind string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() { _ = rows.Close() }()

	documents := []models.Document{}
	for rows.Next() {
		document, scanErr := scanDocument(rows)
		if scanErr != nil {
			if errors.Is(scanErr, ErrDatabaseError) {
				return nil, scanErr
			}
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, scanErr)
		}
		documents = append(documents, *document)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return documents, nil
}

// UpdateAttachment records the stored attachment of a document.
func (s *Store) UpdateAttachment(ctx context.Context, documentID, size int64, path, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET attachment_size = ?, attachment_path = ?, attachment_content_type = ?, updated_at = ?
		 WHERE id = ?`,
		size, path, contentType, time.Now().UTC(), documentID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if rowsAffected == 0 {
		return ErrDocumentNotFound
	}

	return nil
}

// DeleteDocument removes a document record. The attachment file is not touched.
func (s *Store) DeleteDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if rowsAffected == 0 {
		return ErrDocumentNotFound
	}

	return nil
}
