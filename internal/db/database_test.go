package db

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStrokes() []protocol.Stroke {
	style := protocol.Style{Color: "#fff", Width: 4}
	return []protocol.Stroke{
		{ID: "s1", AuthorID: "a", Points: []protocol.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, Style: style},
		{ID: "s2", AuthorID: "b", Points: []protocol.Point{{X: 5, Y: 5}}, Style: style},
	}
}

func TestRoomOperations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateRoom(ctx, "test-room", "Test Room"); err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	room, err := db.GetRoom(ctx, "test-room")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist")
	}
	if room.ID != "test-room" || room.Name != "Test Room" {
		t.Errorf("Unexpected room: %+v", room)
	}

	room, err = db.GetRoom(ctx, "non-existent")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Non-existent room should return nil")
	}

	if err := db.DeleteRoom(ctx, "test-room"); err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}
	room, err = db.GetRoom(ctx, "test-room")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if room != nil {
		t.Error("Deleted room should not exist")
	}
}

func TestListRooms(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := db.CreateRoom(ctx, "room-"+string(rune('a'+i)), "Room "+string(rune('A'+i))); err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}

	rooms, err := db.ListRooms(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 5 {
		t.Errorf("Expected 5 rooms, got %d", len(rooms))
	}

	rooms, err = db.ListRooms(ctx, 2, 3)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms with offset, got %d", len(rooms))
	}
}

func TestSnapshots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	roomID := "snapshot-test-room"

	snap, err := db.GetSnapshot(ctx, roomID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if snap != nil {
		t.Fatal("Unsaved room should have no snapshot")
	}

	if err := db.SaveSnapshot(ctx, roomID, testStrokes(), 10); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	snap, err = db.GetSnapshot(ctx, roomID)
	if err != nil {
		t.Fatalf("Failed to get snapshot: %v", err)
	}
	if snap.Version != 10 {
		t.Errorf("Expected version 10, got %d", snap.Version)
	}
	if len(snap.Strokes) != 2 || snap.Strokes[0].ID != "s1" || len(snap.Strokes[0].Points) != 2 {
		t.Errorf("Unexpected strokes: %+v", snap.Strokes)
	}

	if err := db.SaveSnapshot(ctx, roomID, nil, 20); err != nil {
		t.Fatalf("Failed to update snapshot: %v", err)
	}
	strokes, err := db.LoadStrokes(ctx, roomID)
	if err != nil {
		t.Fatalf("Failed to load strokes: %v", err)
	}
	if len(strokes) != 0 {
		t.Errorf("Expected an empty log after overwrite, got %d strokes", len(strokes))
	}

	room, err := db.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		t.Errorf("Saving a snapshot should create the room row, got %v, %v", room, err)
	}
}

func TestLoadStrokesUnknownRoom(t *testing.T) {
	db := setupTestDB(t)
	strokes, err := db.LoadStrokes(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strokes != nil {
		t.Errorf("Expected nil strokes, got %v", strokes)
	}
}

func TestCheckpoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cp, err := db.CreateCheckpoint(ctx, "r1", "First", "desc", "api", testStrokes(), false)
	if err != nil {
		t.Fatalf("Failed to create checkpoint: %v", err)
	}
	if cp.ID == 0 || cp.StrokeCount != 2 || cp.PointCount != 3 {
		t.Errorf("Unexpected checkpoint: %+v", cp)
	}
	if len(cp.Strokes) != 2 {
		t.Errorf("Expected strokes on fetched checkpoint, got %d", len(cp.Strokes))
	}

	_, hash, err := EncodeStrokes(testStrokes())
	if err != nil {
		t.Fatalf("EncodeStrokes failed: %v", err)
	}
	if cp.ContentHash != hash {
		t.Errorf("Content hash mismatch: %s vs %s", cp.ContentHash, hash)
	}

	second, err := db.CreateCheckpoint(ctx, "r1", "Second", "", "api", testStrokes()[:1], true)
	if err != nil {
		t.Fatalf("Failed to create checkpoint: %v", err)
	}

	list, err := db.ListCheckpoints(ctx, "r1", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list checkpoints: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("Expected newest first, got %+v", list)
	}
	if list[0].Strokes != nil {
		t.Error("Listed checkpoints should not carry strokes")
	}

	latest, err := db.GetLatestCheckpoint(ctx, "r1")
	if err != nil || latest == nil || latest.ID != second.ID {
		t.Errorf("Unexpected latest checkpoint %+v, %v", latest, err)
	}

	removed, err := db.DeleteCheckpoint(ctx, cp.ID)
	if err != nil || !removed {
		t.Fatalf("Failed to delete checkpoint: %v", err)
	}
	removed, err = db.DeleteCheckpoint(ctx, cp.ID)
	if err != nil || removed {
		t.Errorf("Deleting twice should report nothing removed, got %v, %v", removed, err)
	}

	missing, err := db.GetCheckpoint(ctx, cp.ID)
	if err != nil || missing != nil {
		t.Errorf("Deleted checkpoint should be gone, got %+v, %v", missing, err)
	}
}

func TestDeleteOldAutoCheckpoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateCheckpoint(ctx, "r1", "manual", "", "", nil, false); err != nil {
		t.Fatalf("Failed to create checkpoint: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := db.CreateCheckpoint(ctx, "r1", "auto", "", "", testStrokes()[:1], true); err != nil {
			t.Fatalf("Failed to create checkpoint: %v", err)
		}
	}

	if err := db.DeleteOldAutoCheckpoints(ctx, "r1", 2); err != nil {
		t.Fatalf("Failed to trim checkpoints: %v", err)
	}

	count, err := db.CountCheckpoints(ctx, "r1")
	if err != nil {
		t.Fatalf("Failed to count checkpoints: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 2 auto + 1 manual checkpoints, got %d", count)
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.CreateRoom(ctx, "stats-room-"+string(rune('a'+i)), ""); err != nil {
			t.Fatalf("Failed to create room: %v", err)
		}
	}
	if err := db.SaveSnapshot(ctx, "stats-room-a", testStrokes(), 1); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	if _, err := db.CreateCheckpoint(ctx, "stats-room-b", "cp", "", "", testStrokes(), false); err != nil {
		t.Fatalf("Failed to create checkpoint: %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.RoomCount != 3 || stats.SnapshotCount != 1 || stats.CheckpointCount != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
