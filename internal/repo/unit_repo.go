package repo

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/pkg/dbutil"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
)

// DocumentUnitRepo is the persistence side of the vectorization core: it
// reads notes and library items as document units and writes back only the
// vectorization lifecycle fields.
type DocumentUnitRepo struct {
	db *sql.DB
}

func NewDocumentUnitRepo(db *sql.DB) *DocumentUnitRepo {
	return &DocumentUnitRepo{db: db}
}

func (r *DocumentUnitRepo) GetUnit(ctx context.Context, kind model.UnitKind, id string) (*model.DocumentUnit, error) {
	switch kind {
	case model.UnitKindNote:
		return r.getNoteUnit(ctx, id)
	case model.UnitKindLibraryItem:
		return r.getLibraryItemUnit(ctx, id)
	default:
		return nil, fmt.Errorf("unknown unit kind: %s", kind)
	}
}

func (r *DocumentUnitRepo) getNoteUnit(ctx context.Context, id string) (*model.DocumentUnit, error) {
	where := map[string]interface{}{"id": id, "placeholder": false}
	cols := []string{"id", "user_id", "project_id", "title", "content", "vector_status", "vector_error", "vector_mtime"}
	sqlStr, args, err := builder.BuildSelect("notes", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	unit := &model.DocumentUnit{Kind: model.UnitKindNote}
	if err := row.Scan(&unit.ID, &unit.UserID, &unit.ProjectID, &unit.Title, &unit.Content,
		&unit.VectorStatus, &unit.VectorError, &unit.VectorMtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	// A note's chunks are scoped to the note itself.
	unit.NoteID = unit.ID
	return unit, nil
}

func (r *DocumentUnitRepo) getLibraryItemUnit(ctx context.Context, id string) (*model.DocumentUnit, error) {
	where := map[string]interface{}{"id": id}
	cols := []string{"id", "user_id", "project_id", "note_id", "title", "file_name", "file_key",
		"vector_status", "vector_error", "vector_mtime"}
	sqlStr, args, err := builder.BuildSelect("library_items", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	unit := &model.DocumentUnit{Kind: model.UnitKindLibraryItem}
	var noteID sql.NullString
	if err := row.Scan(&unit.ID, &unit.UserID, &unit.ProjectID, &noteID, &unit.Title, &unit.FileName,
		&unit.FileKey, &unit.VectorStatus, &unit.VectorError, &unit.VectorMtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	unit.NoteID = noteID.String
	return unit, nil
}

func (r *DocumentUnitRepo) SetVectorStatus(ctx context.Context, kind model.UnitKind, id string, status model.VectorStatus, errText string) error {
	table := "notes"
	if kind == model.UnitKindLibraryItem {
		table = "library_items"
	}
	update := map[string]interface{}{
		"vector_status": string(status),
		"vector_error":  errText,
		"vector_mtime":  time.Now().UnixMilli(),
	}
	sqlStr, args, err := builder.BuildUpdate(table, map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// SetLibraryItemNote rewrites the note association on the item row. Vector
// metadata is patched separately.
func (r *DocumentUnitRepo) SetLibraryItemNote(ctx context.Context, itemID, noteID string) error {
	sqlStr, args, err := builder.BuildUpdate("library_items",
		map[string]interface{}{"id": itemID},
		map[string]interface{}{"note_id": noteID, "mtime": time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// GetNote resolves the retrieval anchor together with its live attachment
// set. Placeholder notes resolve too; retrieval never queries them directly.
func (r *DocumentUnitRepo) GetNote(ctx context.Context, noteID string) (*model.Note, error) {
	where := map[string]interface{}{"id": noteID}
	cols := []string{"id", "user_id", "project_id", "title", "content", "placeholder"}
	sqlStr, args, err := builder.BuildSelect("notes", where, cols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	note := &model.Note{}
	var content string
	if err := row.Scan(&note.ID, &note.UserID, &note.ProjectID, &note.Title, &content, &note.Placeholder); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	note.HasContent = len(content) > 0
	items, err := r.listAttachedItemIDs(ctx, noteID)
	if err != nil {
		return nil, err
	}
	note.AttachedItemIDs = items
	return note, nil
}

func (r *DocumentUnitRepo) listAttachedItemIDs(ctx context.Context, noteID string) ([]string, error) {
	sqlStr, args, err := builder.BuildSelect("note_attachments",
		map[string]interface{}{"note_id": noteID}, []string{"item_id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachedItemTitles returns display names for the classifier context.
func (r *DocumentUnitRepo) AttachedItemTitles(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	sqlStr, args, err := builder.BuildSelect("library_items",
		map[string]interface{}{"id in": itemIDs}, []string{"title", "file_name"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var title, fileName string
		if err := rows.Scan(&title, &fileName); err != nil {
			return nil, err
		}
		if title == "" {
			title = fileName
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// ResolvePlaceholderNote returns the singleton hidden note for a project,
// creating it on first use. It exists so chunks of unattached library items
// still carry a note-scoped key.
func (r *DocumentUnitRepo) ResolvePlaceholderNote(ctx context.Context, userID, projectID string) (string, error) {
	sqlStr, args, err := builder.BuildSelect("notes",
		map[string]interface{}{"project_id": projectID, "placeholder": true}, []string{"id"})
	if err != nil {
		return "", err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var id string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = newID()
	const insert = `
		INSERT INTO notes (id, user_id, project_id, title, content, placeholder, vector_status, mtime)
		VALUES ($1, $2, $3, '', '', TRUE, 'completed', $4)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, id, userID, projectID, time.Now().UnixMilli()); err != nil {
		return "", err
	}
	// A concurrent creator may have won the conflict; read back the winner.
	sqlStr, args, err = builder.BuildSelect("notes",
		map[string]interface{}{"project_id": projectID, "placeholder": true}, []string{"id"})
	if err != nil {
		return "", err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ListPendingUnits returns units whose content changed at least delaySeconds
// ago and are still waiting for vectorization.
func (r *DocumentUnitRepo) ListPendingUnits(ctx context.Context, delaySeconds int64, limit int) ([]model.DocumentUnit, error) {
	cutoff := time.Now().Add(-time.Duration(delaySeconds) * time.Second).UnixMilli()
	const noteQuery = `
		SELECT id FROM notes
		WHERE vector_status = $1 AND placeholder = FALSE AND mtime <= $2
		LIMIT $3
	`
	const itemQuery = `
		SELECT id FROM library_items
		WHERE vector_status = $1 AND mtime <= $2
		LIMIT $3
	`
	var units []model.DocumentUnit
	collect := func(query string, kind model.UnitKind) error {
		rows, err := r.db.QueryContext(ctx, query, string(model.VectorStatusPending), cutoff, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			units = append(units, model.DocumentUnit{ID: id, Kind: kind})
		}
		return rows.Err()
	}
	if err := collect(noteQuery, model.UnitKindNote); err != nil {
		return nil, err
	}
	if err := collect(itemQuery, model.UnitKindLibraryItem); err != nil {
		return nil, err
	}
	return units, nil
}

func newID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
