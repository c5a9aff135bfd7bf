package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/db"
)

type CreateCheckpointRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	IsAuto      bool   `json:"is_auto"`
}

// requireStorage answers 503 when checkpoints are unavailable.
func (a *API) requireStorage(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.database == nil {
			a.errorResponse(w, http.StatusServiceUnavailable, "Checkpoints require sqlite storage")
			return
		}
		next(w, r)
	}
}

func checkpointID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "checkpointID"), 10, 64)
}

// ListCheckpointsHandler returns checkpoint summaries for a room, newest first
func (a *API) ListCheckpointsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	limit, offset := paging(r, 50)

	checkpoints, err := a.database.ListCheckpoints(r.Context(), roomID, limit, offset)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list checkpoints")
		return
	}

	total, _ := a.database.CountCheckpoints(r.Context(), roomID)

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"checkpoints": checkpoints,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// CreateCheckpointHandler saves the room's current stroke log
func (a *API) CreateCheckpointHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req CreateCheckpointRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.errorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	strokes, _, found, err := a.strokesFor(r.Context(), roomID)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if !found {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	// Generate name if not provided
	if req.Name == "" {
		if req.IsAuto {
			req.Name = fmt.Sprintf("Auto-save %s", time.Now().Format("Jan 2, 3:04 PM"))
		} else {
			req.Name = fmt.Sprintf("Checkpoint %s", time.Now().Format("Jan 2, 3:04 PM"))
		}
	}

	// Skip auto-saves identical to the latest checkpoint
	if req.IsAuto {
		_, hash, err := db.EncodeStrokes(strokes)
		if err != nil {
			a.errorResponse(w, http.StatusInternalServerError, "Failed to encode strokes")
			return
		}
		latest, err := a.database.GetLatestCheckpoint(r.Context(), roomID)
		if err == nil && latest != nil && latest.ContentHash == hash {
			a.jsonResponse(w, http.StatusOK, latest)
			return
		}
	}

	checkpoint, err := a.database.CreateCheckpoint(r.Context(), roomID, req.Name, req.Description, req.CreatedBy, strokes, req.IsAuto)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to create checkpoint")
		return
	}

	if req.IsAuto {
		if err := a.database.DeleteOldAutoCheckpoints(r.Context(), roomID, keepAutoCheckpoints); err != nil {
			a.logger.Warn("Failed to clean up old auto checkpoints", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	checkpoint.Strokes = nil
	a.jsonResponse(w, http.StatusCreated, checkpoint)
}

// GetCheckpointHandler retrieves a checkpoint with its strokes
func (a *API) GetCheckpointHandler(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid checkpoint ID")
		return
	}

	checkpoint, err := a.database.GetCheckpoint(r.Context(), id)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get checkpoint")
		return
	}
	if checkpoint == nil {
		a.errorResponse(w, http.StatusNotFound, "Checkpoint not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, checkpoint)
}

func (a *API) DeleteCheckpointHandler(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid checkpoint ID")
		return
	}

	removed, err := a.database.DeleteCheckpoint(r.Context(), id)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to delete checkpoint")
		return
	}
	if !removed {
		a.errorResponse(w, http.StatusNotFound, "Checkpoint not found")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]string{"message": "Checkpoint deleted"})
}

// RestoreCheckpointHandler swaps the room's log for the checkpoint's and
// records the restore as a new checkpoint.
func (a *API) RestoreCheckpointHandler(w http.ResponseWriter, r *http.Request) {
	id, err := checkpointID(r)
	if err != nil {
		a.errorResponse(w, http.StatusBadRequest, "Invalid checkpoint ID")
		return
	}

	checkpoint, err := a.database.GetCheckpoint(r.Context(), id)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get checkpoint")
		return
	}
	if checkpoint == nil {
		a.errorResponse(w, http.StatusNotFound, "Checkpoint not found")
		return
	}

	a.restorer.Restore(r.Context(), checkpoint.RoomID, checkpoint.Strokes)

	restored, err := a.database.CreateCheckpoint(r.Context(),
		checkpoint.RoomID,
		fmt.Sprintf("Restored from: %s", checkpoint.Name),
		fmt.Sprintf("Restored to checkpoint %d (%s)", checkpoint.ID, checkpoint.Name),
		"", // No specific creator for restore
		checkpoint.Strokes,
		false,
	)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to record restore")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message":        "Checkpoint restored",
		"restored_from":  checkpoint.ID,
		"new_checkpoint": restored.ID,
		"room_id":        checkpoint.RoomID,
		"stroke_count":   checkpoint.StrokeCount,
	})
}
