package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/db"
	"github.com/Aviral1511/Collaborative-Canvas/internal/export"
	"github.com/Aviral1511/Collaborative-Canvas/internal/room"
	"github.com/Aviral1511/Collaborative-Canvas/internal/ws"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// Auto checkpoints kept per room
const keepAutoCheckpoints = 20

// Restorer replaces a live room's stroke log and notifies its members.
type Restorer interface {
	Restore(ctx context.Context, roomID string, strokes []protocol.Stroke)
}

type API struct {
	hub      *ws.Hub
	rooms    *room.Registry
	database *db.Database
	restorer Restorer
	logger   *zap.Logger
}

// New wires the HTTP handlers. database may be nil, which disables the
// checkpoint endpoints and stored-room lookups.
func New(hub *ws.Hub, rooms *room.Registry, database *db.Database, restorer Restorer, logger *zap.Logger) *API {
	return &API{
		hub:      hub,
		rooms:    rooms,
		database: database,
		restorer: restorer,
		logger:   logger.Named("api"),
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("Error encoding JSON response", zap.Error(err))
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	strokes, points := 0, 0
	for _, rm := range a.rooms.Rooms() {
		strokes += rm.Len()
		points += rm.PointCount()
	}

	stats := map[string]interface{}{
		"loaded_rooms":   a.rooms.Count(),
		"active_rooms":   len(a.hub.ActiveRooms()),
		"active_clients": a.hub.ClientCount(),
		"total_strokes":  strokes,
		"total_points":   points,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats(r.Context())
		if err == nil {
			stats["stored_rooms"] = dbStats.RoomCount
			stats["stored_snapshots"] = dbStats.SnapshotCount
			stats["checkpoints"] = dbStats.CheckpointCount
		} else {
			a.logger.Warn("Failed to read database stats", zap.Error(err))
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	ID          string            `json:"id"`
	Live        bool              `json:"live"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
	Connections int               `json:"connections"`
	Members     []protocol.Member `json:"members,omitempty"`
	StrokeCount int               `json:"stroke_count"`
	PointCount  int               `json:"point_count"`
	Strokes     []protocol.Stroke `json:"strokes,omitempty"` // Omit in list view
}

func (a *API) liveRoom(rm *room.Room) RoomResponse {
	return RoomResponse{
		ID:          rm.ID,
		Live:        true,
		CreatedAt:   rm.CreatedAt(),
		Connections: a.hub.RoomSize(rm.ID),
		StrokeCount: rm.Len(),
		PointCount:  rm.PointCount(),
	}
}

func paging(r *http.Request, def int) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = def
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListRoomsHandler lists rooms held in memory and, with storage, saved rooms.
func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	live := a.rooms.Rooms()
	response := make([]RoomResponse, len(live))
	for i, rm := range live {
		response[i] = a.liveRoom(rm)
	}

	body := map[string]interface{}{"rooms": response}

	if a.database != nil {
		limit, offset := paging(r, 20)
		stored, err := a.database.ListRooms(r.Context(), limit, offset)
		if err != nil {
			a.errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
			return
		}
		if stored == nil {
			stored = []db.Room{}
		}
		body["stored"] = stored
		body["limit"] = limit
		body["offset"] = offset
	}

	a.jsonResponse(w, http.StatusOK, body)
}

// strokesFor returns a room's stroke log from memory or, failing that, from
// its saved snapshot. found is false when neither exists.
func (a *API) strokesFor(ctx context.Context, roomID string) ([]protocol.Stroke, *RoomResponse, bool, error) {
	if rm, ok := a.rooms.Get(roomID); ok {
		resp := a.liveRoom(rm)
		resp.Members = rm.Members()
		return rm.Snapshot(), &resp, true, nil
	}
	if a.database == nil {
		return nil, nil, false, nil
	}

	snap, err := a.database.GetSnapshot(ctx, roomID)
	if err != nil || snap == nil {
		return nil, nil, false, err
	}
	resp := RoomResponse{ID: roomID, UpdatedAt: snap.UpdatedAt, StrokeCount: len(snap.Strokes)}
	for _, s := range snap.Strokes {
		resp.PointCount += len(s.Points)
	}
	return snap.Strokes, &resp, true, nil
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	strokes, resp, found, err := a.strokesFor(r.Context(), roomID)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if !found {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	resp.Strokes = strokes
	if resp.Strokes == nil {
		resp.Strokes = []protocol.Stroke{}
	}
	a.jsonResponse(w, http.StatusOK, resp)
}

func (a *API) ExportPDFHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	strokes, _, found, err := a.strokesFor(r.Context(), roomID)
	if err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if !found {
		a.errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", roomID+".pdf"))
	if err := export.Render(w, strokes, export.Options{Title: "Room " + roomID}); err != nil {
		a.logger.Warn("PDF export failed", zap.String("room_id", roomID), zap.Error(err))
	}
}

// ServeWs upgrades to the canvas websocket protocol
func (a *API) ServeWs(w http.ResponseWriter, r *http.Request) {
	ws.ServeWs(a.hub, w, r)
}
