package fileloader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/pool"
)

func awaitTicket(t *testing.T, tk resourcepool.Ticket) (any, error) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("load never resolved")
	}
	return tk.Result()
}

func writeLZ4(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_PlainFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := []byte("cube mesh data")
	if err := os.WriteFile(filepath.Join(root, "models", "cube.mesh"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(root)
	asset, err := awaitTicket(t, l.Load(context.Background(), "models/cube.mesh"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	blob := asset.(*Blob)
	if !bytes.Equal(blob.Data, want) {
		t.Fatalf("data = %q", blob.Data)
	}
	if blob.Size() != len(want) {
		t.Fatalf("size = %d", blob.Size())
	}
}

func TestLoader_LZ4Decompression(t *testing.T) {
	root := t.TempDir()
	want := bytes.Repeat([]byte("vertex "), 512)
	writeLZ4(t, filepath.Join(root, "big.bin.lz4"), want)

	l := New(root)
	asset, err := awaitTicket(t, l.Load(context.Background(), "big.bin.lz4"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	blob := asset.(*Blob)
	if !bytes.Equal(blob.Data, want) {
		t.Fatalf("decompressed %d bytes, want %d", len(blob.Data), len(want))
	}
}

func TestLoader_KeyEscapesRoot(t *testing.T) {
	l := New(t.TempDir())

	for _, key := range []resourcepool.Key{"../secret", "a/../../b", "/etc/passwd"} {
		_, err := awaitTicket(t, l.Load(context.Background(), key))
		if err == nil || !strings.Contains(err.Error(), "escapes the loader root") {
			t.Fatalf("key %q: err = %v", key, err)
		}
	}
}

func TestLoader_MissingFile(t *testing.T) {
	l := New(t.TempDir())
	_, err := awaitTicket(t, l.Load(context.Background(), "absent.bin"))
	if err == nil || !strings.Contains(err.Error(), "open asset") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoader_PoolIntegration(t *testing.T) {
	root := t.TempDir()
	want := []byte("shared payload")
	if err := os.WriteFile(filepath.Join(root, "asset.bin"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	loc := pool.NewLocator(pool.Config{Loader: New(root)})
	h, err := loc.Handler("asset.bin")
	if err != nil {
		t.Fatal(err)
	}

	if err := h.RetainAndWait(context.Background()); err != nil {
		t.Fatalf("RetainAndWait: %v", err)
	}
	asset, err := h.Asset()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(asset.(*Blob).Data, want) {
		t.Fatalf("asset = %q", asset.(*Blob).Data)
	}
	h.Release()
}
