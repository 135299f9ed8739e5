// Package fileloader loads assets from a root-anchored directory
// tree. Keys are relative paths; keys ending in .lz4 are decompressed
// transparently, so archived and plain assets share one key scheme.
package fileloader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Blob is the loaded asset: the raw bytes of one file, decompressed
// when the key named an lz4 archive.
type Blob struct {
	Key  resourcepool.Key
	Data []byte
}

// Size returns the decompressed byte count.
func (b *Blob) Size() int {
	return len(b.Data)
}

// Loader reads assets beneath Root. Keys escaping the root are load
// errors, not filesystem access.
type Loader struct {
	Root string
}

// New creates a loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{Root: dir}
}

// Load reads the file addressed by key in a background goroutine.
func (l *Loader) Load(ctx context.Context, key resourcepool.Key) resourcepool.Ticket {
	return resourcepool.Start(ctx, key, l.read)
}

func (l *Loader) read(ctx context.Context, key resourcepool.Key) (any, error) {
	rel := filepath.FromSlash(string(key))
	if !filepath.IsLocal(rel) {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailed).
			Key(string(key)).
			Detail("key escapes the loader root").
			Build()
	}

	f, err := os.Open(filepath.Join(l.Root, rel))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "open asset")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(string(key), ".lz4") {
		r = lz4.NewReader(f)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "read asset")
	}

	return &Blob{Key: key, Data: data}, nil
}

var _ resourcepool.Loader = (*Loader)(nil)
