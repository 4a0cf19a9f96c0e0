package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"approval-tracker/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `
	id, title, description, project, macroprocess, process, microprocess, doc_type,
	author_id, assignees, state, version, progress, has_pending_request, submitted_by,
	files, COALESCE(ignored_inconsistency, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var doc domain.Document
	var files []byte
	if err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Description,
		&doc.Hierarchy.Project,
		&doc.Hierarchy.Macroprocess,
		&doc.Hierarchy.Process,
		&doc.Hierarchy.Microprocess,
		&doc.Hierarchy.DocType,
		&doc.AuthorID,
		pq.Array(&doc.Assignees),
		&doc.State,
		&doc.Version,
		&doc.Progress,
		&doc.HasPendingRequest,
		&doc.SubmittedBy,
		&files,
		&doc.IgnoredInconsistency,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return domain.Document{}, err
	}
	doc.Files = []domain.DocFile{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &doc.Files); err != nil {
			return domain.Document{}, fmt.Errorf("decode files of %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, domain.DocumentNotFound(id)
	}
	return doc, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	where := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Project != "" {
		add("project = $%d", filter.Project)
	}
	if filter.Microprocess != "" {
		add("microprocess = $%d", filter.Microprocess)
	}
	if filter.DocType != "" {
		add("doc_type = $%d", filter.DocType)
	}
	if filter.State != "" {
		add("state = $%d", filter.State)
	}
	if filter.AssigneeID != "" {
		add("$%d = ANY(assignees)", filter.AssigneeID)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		files, err := encodeFiles(doc.Files)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (
				id, title, description, project, macroprocess, process, microprocess, doc_type,
				author_id, assignees, state, version, progress, has_pending_request, submitted_by,
				files, ignored_inconsistency, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, NULLIF($17, ''), $18, $19)
		`,
			doc.ID, doc.Title, doc.Description,
			doc.Hierarchy.Project, doc.Hierarchy.Macroprocess, doc.Hierarchy.Process, doc.Hierarchy.Microprocess, doc.Hierarchy.DocType,
			doc.AuthorID, pq.Array(doc.Assignees), doc.State, doc.Version, doc.Progress, doc.HasPendingRequest, doc.SubmittedBy,
			files, doc.IgnoredInconsistency, doc.CreatedAt, doc.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *PostgresStore) SaveTransition(ctx context.Context, doc domain.Document, entry domain.HistoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateDocument(ctx, tx, doc); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc domain.Document) error {
	return updateDocument(ctx, s.db, doc)
}

func (s *PostgresStore) RevertTransition(ctx context.Context, doc domain.Document, entryID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateDocument(ctx, tx, doc); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM document_history WHERE id = $1 AND document_id = $2`, entryID, doc.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.NotFoundError{Kind: "history entry", ID: entryID}
		}
		return nil
	})
}

// DeleteDocument removes the document; history goes with it through the foreign key cascade.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.DocumentNotFound(id)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, action, previous_state, new_state, version, comment, created_at
		FROM document_history
		WHERE document_id = $1
		ORDER BY created_at ASC, seq ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.UserID, &h.Action, &h.PreviousState, &h.NewState, &h.Version, &h.Comment, &h.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, role FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.UserNotFound(id)
	}
	return u, err
}

func (s *PostgresStore) ListUsersByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, role FROM users WHERE role = ANY($1) ORDER BY id
	`, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role
	`, u.ID, u.Name, u.Email, u.Role)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateDocument(ctx context.Context, db execer, doc domain.Document) error {
	files, err := encodeFiles(doc.Files)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE documents SET
			title = $2,
			description = $3,
			assignees = $4,
			state = $5,
			version = $6,
			progress = $7,
			has_pending_request = $8,
			submitted_by = $9,
			files = $10::jsonb,
			ignored_inconsistency = NULLIF($11, ''),
			updated_at = $12
		WHERE id = $1
	`, doc.ID, doc.Title, doc.Description, pq.Array(doc.Assignees), doc.State, doc.Version, doc.Progress,
		doc.HasPendingRequest, doc.SubmittedBy, files, doc.IgnoredInconsistency, doc.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.DocumentNotFound(doc.ID)
	}
	return nil
}

func insertHistory(ctx context.Context, db execer, h domain.HistoryEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO document_history (id, document_id, user_id, action, previous_state, new_state, version, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, h.ID, h.DocumentID, h.UserID, h.Action, h.PreviousState, h.NewState, h.Version, h.Comment, h.Timestamp)
	return err
}

func encodeFiles(files []domain.DocFile) (string, error) {
	if files == nil {
		files = []domain.DocFile{}
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode files: %w", err)
	}
	return string(b), nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
