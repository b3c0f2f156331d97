package store_test

import (
	"context"
	"io/fs"
	"sort"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/fstream/store"
	"github.com/nuln/fstream/store/driver/local"
)

func TestWalk(t *testing.T) {
	ctx := context.Background()
	engine := local.NewWithFs(afero.NewMemMapFs())
	for _, p := range []string{"images/a.jpg", "images/.thumbs/a.jpg", "videos/b.mp4"} {
		w, err := engine.Create(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte("x"))
		_ = w.Close()
	}

	var files []string
	err := store.Walk(ctx, engine, ".", func(path string, info *store.EntryInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir && info.Name == ".thumbs" {
			return fs.SkipDir
		}
		if !info.IsDir {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	sort.Strings(files)
	if len(files) != 2 || files[0] != "images/a.jpg" || files[1] != "videos/b.mp4" {
		t.Fatalf("files = %v", files)
	}
}

func TestWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := local.NewWithFs(afero.NewMemMapFs())
	err := store.Walk(ctx, engine, ".", func(string, *store.EntryInfo, error) error { return nil })
	if err == nil {
		t.Fatal("expected ctx error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := store.Open(&store.Config{Type: "nope"}); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
	if _, err := store.Open(nil); err == nil {
		t.Fatal("expected an error for a nil config")
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := &store.Config{Options: map[string]any{
		"bucket": "media", "chunkSize": "1024", "workers": 3, "pathStyle": "true",
	}}
	if cfg.String("bucket", "") != "media" || cfg.String("missing", "d") != "d" {
		t.Error("String")
	}
	if cfg.Int("chunkSize", 0) != 1024 || cfg.Int("workers", 0) != 3 || cfg.Int("missing", 7) != 7 {
		t.Error("Int")
	}
	if !cfg.Bool("pathStyle", false) {
		t.Error("Bool")
	}
}
