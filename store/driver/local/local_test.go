package local_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"

	"github.com/nuln/fstream/store/driver/local"
	"github.com/nuln/fstream/store/storetest"
)

func TestLocalEngine(t *testing.T) {
	engine := local.NewWithFs(afero.NewMemMapFs())
	storetest.StorageTestSuite(t, engine)
}

func TestLocalEngineOnDisk(t *testing.T) {
	engine, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	storetest.StorageTestSuite(t, engine)
}

func TestLocalReadAtTail(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "tail.bin", []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := local.NewWithFs(fs).Open(context.Background(), "tail.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 7)
	if n != 3 || !errors.Is(err, io.EOF) {
		t.Fatalf("ReadAt(7) = %d, %v; want 3, io.EOF", n, err)
	}
	if string(buf[:n]) != "789" {
		t.Fatalf("ReadAt(7) read %q", buf[:n])
	}

	n, err = f.ReadAt(buf[:3], 7)
	if n != 3 || err != nil {
		t.Fatalf("exact tail ReadAt = %d, %v; want 3, nil", n, err)
	}
}
