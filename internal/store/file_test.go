package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/wallstream/core"
	"github.com/signalsfoundry/wallstream/model"
)

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestFileStoreMissingFileIsNoWaypoints(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "BuildTheWall.cfg"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, core.ErrNoWaypoints) {
		t.Fatalf("Load err = %v, want ErrNoWaypoints", err)
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "BuildTheWall.cfg"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	pairs := []model.WaypointPair{
		{BodyName: "Kerbin", Start: model.GeoCoordinate{Latitude: -0.0972, Longitude: -74.5577, Altitude: 70}, End: model.GeoCoordinate{Latitude: -0.0972, Longitude: -74.5567, Altitude: 70}, Collidable: true},
		{BodyName: "Mun", Start: model.GeoCoordinate{Latitude: 1, Longitude: 2}, End: model.GeoCoordinate{Latitude: 1.5, Longitude: 2.5, Altitude: 3}, Collidable: true},
	}
	if err := s.Save(ctx, pairs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(pairs) {
		t.Fatalf("loaded %d pairs, want %d", len(got), len(pairs))
	}
	for i := range pairs {
		if got[i] != pairs[i] {
			t.Fatalf("pair %d = %+v, want %+v", i, got[i], pairs[i])
		}
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreSaveEmptyLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(filepath.Join(t.TempDir(), "walls.cfg"))
	if err := s.Save(ctx, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Load = %v, %v; want no pairs and no error", got, err)
	}
}

func TestFileStoreLoadReportsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walls.cfg")
	if err := os.WriteFile(path, []byte("=Kerbin\n1, 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, _ := NewFileStore(path)
	_, err := s.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("Load err = %v, want line 2 parse error", err)
	}
}

func TestFileStoreSaveRejectsBadPairKeepsOldFile(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(filepath.Join(t.TempDir(), "walls.cfg"))
	good := []model.WaypointPair{{BodyName: "Kerbin", End: model.GeoCoordinate{Latitude: 1}, Collidable: true}}
	if err := s.Save(ctx, good); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, []model.WaypointPair{{}}); err == nil {
		t.Fatal("expected error for pair without body")
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("previous contents lost: %v, %v", got, err)
	}
}
