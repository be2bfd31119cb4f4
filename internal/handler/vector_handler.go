package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/notewise/notewise/internal/model"
	"github.com/notewise/notewise/internal/pkg/errcode"
	appErr "github.com/notewise/notewise/internal/pkg/errors"
	"github.com/notewise/notewise/internal/pkg/response"
	"github.com/notewise/notewise/internal/service"
)

type VectorHandler struct {
	vectorizer *service.Vectorizer
	units      service.UnitStore
	chunks     service.ChunkStore
}

func NewVectorHandler(vectorizer *service.Vectorizer, units service.UnitStore, chunks service.ChunkStore) *VectorHandler {
	return &VectorHandler{vectorizer: vectorizer, units: units, chunks: chunks}
}

type vectorizeRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func parseKind(raw string) (model.UnitKind, bool) {
	switch model.UnitKind(raw) {
	case model.UnitKindNote:
		return model.UnitKindNote, true
	case model.UnitKindLibraryItem:
		return model.UnitKindLibraryItem, true
	default:
		return "", false
	}
}

func (h *VectorHandler) Vectorize(c *gin.Context) {
	var req vectorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		response.Error(c, errcode.ErrInvalid, "kind and id are required")
		return
	}
	kind, ok := parseKind(req.Kind)
	if !ok {
		response.Error(c, errcode.ErrInvalid, "kind must be note or library_item")
		return
	}
	ctx := c.Request.Context()
	unit, err := h.units.GetUnit(ctx, kind, req.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	if unit.UserID != getUserID(c) {
		// Hide the unit's existence from other tenants.
		handleError(c, appErr.ErrNotFound)
		return
	}
	if err := h.vectorizer.Vectorize(ctx, kind, req.ID); err != nil {
		if errors.Is(err, appErr.ErrEmbedding) || errors.Is(err, appErr.ErrVectorIndex) {
			response.Error(c, errcode.ErrVectorizeFailed, "vectorization failed")
			return
		}
		handleError(c, err)
		return
	}
	h.Status(c, kind, req.ID)
}

func (h *VectorHandler) GetStatus(c *gin.Context) {
	kind, ok := parseKind(c.Query("kind"))
	id := c.Query("id")
	if !ok || id == "" {
		response.Error(c, errcode.ErrInvalid, "kind and id are required")
		return
	}
	h.Status(c, kind, id)
}

func (h *VectorHandler) Status(c *gin.Context, kind model.UnitKind, id string) {
	unit, err := h.units.GetUnit(c.Request.Context(), kind, id)
	if err != nil {
		handleError(c, err)
		return
	}
	if unit.UserID != getUserID(c) {
		handleError(c, appErr.ErrNotFound)
		return
	}
	response.Success(c, gin.H{
		"kind":          unit.Kind,
		"id":            unit.ID,
		"vector_status": unit.VectorStatus,
		"vector_error":  unit.VectorError,
		"vector_mtime":  unit.VectorMtime,
	})
}

// ListChunks exposes the relational mirror of a unit's indexed vectors, in
// chunk order. Useful for inspecting what retrieval can see.
func (h *VectorHandler) ListChunks(c *gin.Context) {
	kind, ok := parseKind(c.Query("kind"))
	id := c.Query("id")
	if !ok || id == "" {
		response.Error(c, errcode.ErrInvalid, "kind and id are required")
		return
	}
	ctx := c.Request.Context()
	unit, err := h.units.GetUnit(ctx, kind, id)
	if err != nil {
		handleError(c, err)
		return
	}
	if unit.UserID != getUserID(c) {
		handleError(c, appErr.ErrNotFound)
		return
	}
	chunks, err := h.chunks.ListByUnit(ctx, id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": chunks, "total": len(chunks)})
}

type reassociateRequest struct {
	ItemID string `json:"item_id"`
	NoteID string `json:"note_id"`
}

func (h *VectorHandler) Reassociate(c *gin.Context) {
	var req reassociateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ItemID == "" || req.NoteID == "" {
		response.Error(c, errcode.ErrInvalid, "item_id and note_id are required")
		return
	}
	updated, err := h.vectorizer.Reassociate(c.Request.Context(), getUserID(c), req.ItemID, req.NoteID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"patched": updated})
}
