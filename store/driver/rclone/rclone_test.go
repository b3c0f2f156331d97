package rclone_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"

	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/webdav"
	_ "github.com/rclone/rclone/cmd/serve"
	_ "github.com/rclone/rclone/cmd/serve/webdav"
	"github.com/rclone/rclone/fs/rc"

	"github.com/nuln/fstream/store"
	"github.com/nuln/fstream/store/driver/rclone"
	"github.com/nuln/fstream/store/storetest"
)

func TestRcloneEngine_Local(t *testing.T) {
	engine, err := rclone.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	storetest.StorageTestSuite(t, engine)
}

func TestRcloneEngine_NativeWalk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	engine, err := rclone.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, p := range []string{"images/a.jpg", "images/.thumbs/a.jpg", "videos/b.mp4"} {
		w, err := engine.Create(ctx, p)
		if err != nil {
			t.Fatalf("Create %s: %v", p, err)
		}
		_, _ = w.Write([]byte("data"))
		if err := w.Close(); err != nil {
			t.Fatalf("Close %s: %v", p, err)
		}
	}

	var files []string
	err = store.Walk(ctx, engine, ".", func(p string, info *store.EntryInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir && info.Name == ".thumbs" {
			return filepath.SkipDir
		}
		if !info.IsDir {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2 entries", files)
	}
}

func TestRcloneEngine_WebDAV(t *testing.T) {
	// 1. Setup local directory to serve via WebDAV
	tempDir := t.TempDir()

	// 2. Find a free port
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	// 3. Start rclone serve webdav programmatically
	ctx := context.Background()
	startCall := rc.Calls.Get("serve/start")
	if startCall == nil {
		t.Fatal("serve/start RC not found - make sure github.com/rclone/rclone/cmd/serve is imported")
	}

	out, err := startCall.Fn(ctx, rc.Params{
		"type": "webdav",
		"fs":   tempDir,
		"addr": addr,
	})
	if err != nil {
		t.Fatalf("Failed to start rclone webdav: %v", err)
	}
	serverID, ok := out["id"].(string)
	if !ok {
		t.Fatal("serve/start did not return id string")
	}
	serverAddr, ok := out["addr"].(string)
	if !ok {
		t.Fatal("serve/start did not return addr string")
	}

	defer func() {
		stopCall := rc.Calls.Get("serve/stop")
		if stopCall != nil {
			_, _ = stopCall.Fn(ctx, rc.Params{"id": serverID})
		}
	}()

	// 4. Open the engine through the registry
	// Remote format: :webdav,url='http://addr':
	cfg := &store.Config{
		Type: "rclone",
		Options: map[string]any{
			"remote": fmt.Sprintf(":webdav,url='http://%s':", serverAddr),
		},
	}

	engine, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open rclone engine: %v", err)
	}

	// 5. Run the universal storage test suite
	storetest.StorageTestSuite(t, engine)
}
