package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestVideo(t *testing.T, s *Store, id string) Video {
	t.Helper()
	v := Video{
		ID:           id,
		OriginalName: "clip.mp4",
		ContentHash:  "deadbeef",
		DeviceInfo:   `{"os":"android"}`,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateVideo(v); err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return v
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the migration created the lookup indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_videos_status", "idx_videos_created", "idx_videos_content_hash"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestCreateGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	want := createTestVideo(t, s, "vid-1")

	got, err := s.GetVideo("vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.OriginalName != want.OriginalName || got.ContentHash != want.ContentHash || got.DeviceInfo != want.DeviceInfo {
		t.Errorf("GetVideo = %+v, want fields from %+v", got, want)
	}
	if got.Status != StatusProcessing {
		t.Errorf("new record status = %q, want %q", got.Status, StatusProcessing)
	}
	if got.OutputName != "" || got.ErrorDetail != "" || !got.CompletedAt.IsZero() {
		t.Errorf("new record has terminal fields set: %+v", got)
	}
}

func TestGetVideo_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetVideo("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVideo(missing) = %v, want ErrNotFound", err)
	}
}

func TestCompleteVideo(t *testing.T) {
	s := openTestStore(t)
	createTestVideo(t, s, "vid-1")

	if err := s.CompleteVideo("vid-1", "clip_signed_20260101_000000.mp4"); err != nil {
		t.Fatalf("CompleteVideo: %v", err)
	}

	got, err := s.GetVideo("vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.OutputName == "" {
		t.Error("completed record missing output_name")
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed record missing completed_at")
	}
	if got.ErrorDetail != "" {
		t.Errorf("completed record has error_detail %q", got.ErrorDetail)
	}
}

func TestFailVideo(t *testing.T) {
	s := openTestStore(t)
	createTestVideo(t, s, "vid-1")

	if err := s.FailVideo("vid-1", "signer exited with code 3"); err != nil {
		t.Fatalf("FailVideo: %v", err)
	}

	got, err := s.GetVideo("vid-1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorDetail != "signer exited with code 3" {
		t.Errorf("error_detail = %q", got.ErrorDetail)
	}
	if got.CompletedAt.IsZero() {
		t.Error("failed record missing completed_at")
	}
	if got.OutputName != "" {
		t.Errorf("failed record has output_name %q", got.OutputName)
	}
}

// TestTerminalStatesAreFinal verifies a record never leaves completed/failed.
func TestTerminalStatesAreFinal(t *testing.T) {
	s := openTestStore(t)

	createTestVideo(t, s, "done")
	if err := s.CompleteVideo("done", "out.mp4"); err != nil {
		t.Fatalf("CompleteVideo: %v", err)
	}
	if err := s.FailVideo("done", "late failure"); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("FailVideo on completed record = %v, want ErrAlreadyFinal", err)
	}

	createTestVideo(t, s, "broken")
	if err := s.FailVideo("broken", "boom"); err != nil {
		t.Fatalf("FailVideo: %v", err)
	}
	if err := s.CompleteVideo("broken", "out.mp4"); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("CompleteVideo on failed record = %v, want ErrAlreadyFinal", err)
	}

	// The first terminal write must still be intact.
	got, err := s.GetVideo("done")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != StatusCompleted || got.OutputName != "out.mp4" {
		t.Errorf("terminal record mutated: %+v", got)
	}
}

func TestFinalize_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.CompleteVideo("missing", "out.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteVideo(missing) = %v, want ErrNotFound", err)
	}
	if err := s.FailVideo("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailVideo(missing) = %v, want ErrNotFound", err)
	}
}

func TestListVideos_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		v := Video{
			ID:           fmt.Sprintf("vid-%d", i),
			OriginalName: "clip.mp4",
			ContentHash:  "hash",
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateVideo(v); err != nil {
			t.Fatalf("CreateVideo: %v", err)
		}
	}

	got, err := s.ListVideos(3)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "vid-4" || got[2].ID != "vid-2" {
		t.Errorf("wrong order: %s ... %s", got[0].ID, got[2].ID)
	}
}
