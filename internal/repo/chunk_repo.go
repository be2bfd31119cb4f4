package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/pkg/dbutil"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
)

// ChunkRepo mirrors one row per indexed vector so vector ids can be found
// again without querying the index.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

var chunkCols = []string{
	"id", "unit_id", "note_id", "library_item_id", "user_id", "content_type", "content",
	"chunk_index", "chunk_size", "vector_id", "embedding_model",
	"cite_author", "cite_title", "cite_source_file", "cite_year", "ctime",
}

// ReplaceForUnit deletes the unit's previous chunk rows and inserts the new
// set in one transaction, matching the delete-then-recreate vector lifecycle.
func (r *ChunkRepo) ReplaceForUnit(ctx context.Context, unitID string, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	delStr, delArgs, err := builder.BuildDelete("chunks", map[string]interface{}{"unit_id": unitID})
	if err != nil {
		return err
	}
	delStr, delArgs = dbutil.Finalize(delStr, delArgs)
	if _, err := tx.ExecContext(ctx, delStr, delArgs...); err != nil {
		return err
	}
	if len(chunks) > 0 {
		rows := make([]map[string]interface{}, 0, len(chunks))
		now := time.Now().UnixMilli()
		for _, chunk := range chunks {
			ctime := chunk.Ctime
			if ctime == 0 {
				ctime = now
			}
			rows = append(rows, map[string]interface{}{
				"id":               chunk.ID,
				"unit_id":          chunk.UnitID,
				"note_id":          chunk.NoteID,
				"library_item_id":  nullable(chunk.LibraryItemID),
				"user_id":          chunk.UserID,
				"content_type":     string(chunk.ContentType),
				"content":          chunk.Content,
				"chunk_index":      chunk.ChunkIndex,
				"chunk_size":       chunk.ChunkSize,
				"vector_id":        chunk.VectorID,
				"embedding_model":  chunk.EmbeddingModel,
				"cite_author":      chunk.Citation.Author,
				"cite_title":       chunk.Citation.Title,
				"cite_source_file": chunk.Citation.SourceFile,
				"cite_year":        chunk.Citation.Year,
				"ctime":            ctime,
			})
		}
		insStr, insArgs, err := builder.BuildInsert("chunks", rows)
		if err != nil {
			return err
		}
		insStr, insArgs = dbutil.Finalize(insStr, insArgs)
		if _, err := tx.ExecContext(ctx, insStr, insArgs...); err != nil {
			if dbutil.IsConflict(err) {
				// vector_id is globally unique; a collision means a concurrent
				// run already replaced this unit.
				return appErr.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (r *ChunkRepo) DeleteByUnit(ctx context.Context, unitID string) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{"unit_id": unitID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) ListByUnit(ctx context.Context, unitID string) ([]model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect("chunks",
		map[string]interface{}{"unit_id": unitID, "_orderby": "chunk_index"}, chunkCols)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []model.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) ListVectorIDsByUnit(ctx context.Context, unitID string) ([]string, error) {
	sqlStr, args, err := builder.BuildSelect("chunks",
		map[string]interface{}{"unit_id": unitID, "_orderby": "chunk_index"}, []string{"vector_id"})
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

// UpdateNoteIDForUnit rewrites the note scope on mirror rows after a
// reassociation; the vector metadata is patched by the caller.
func (r *ChunkRepo) UpdateNoteIDForUnit(ctx context.Context, unitID, noteID string) error {
	sqlStr, args, err := builder.BuildUpdate("chunks",
		map[string]interface{}{"unit_id": unitID},
		map[string]interface{}{"note_id": noteID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanChunk(rows *sql.Rows) (model.Chunk, error) {
	var chunk model.Chunk
	var libraryItemID sql.NullString
	var contentType string
	if err := rows.Scan(&chunk.ID, &chunk.UnitID, &chunk.NoteID, &libraryItemID, &chunk.UserID,
		&contentType, &chunk.Content, &chunk.ChunkIndex, &chunk.ChunkSize, &chunk.VectorID,
		&chunk.EmbeddingModel, &chunk.Citation.Author, &chunk.Citation.Title,
		&chunk.Citation.SourceFile, &chunk.Citation.Year, &chunk.Ctime); err != nil {
		return model.Chunk{}, err
	}
	chunk.LibraryItemID = libraryItemID.String
	chunk.ContentType = model.ContentType(contentType)
	return chunk, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
