// Package catalog maps logical asset names to pool keys. A catalog is
// a JSON manifest of name/version/key rows; Resolve picks the concrete
// key for a name, preferring the newest version that can serve the
// request. Names may carry a version ("hero-mesh@1.2.0"), in which
// case a row matches when it has the same major version and is not
// older than the one asked for.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

type manifest struct {
	Assets []manifestAsset `json:"assets"`
}

type manifestAsset struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Key     resourcepool.Key `json:"key"`
}

type entry struct {
	version semver.Version
	key     resourcepool.Key
}

// Catalog is an in-memory name index over a manifest. All methods are
// safe for concurrent use; Watch swaps the entry set in place.
type Catalog struct {
	path string

	mu      sync.RWMutex
	entries map[string][]entry
}

// Parse builds a catalog from manifest JSON.
func Parse(data []byte) (*Catalog, error) {
	entries, err := parseEntries(data)
	if err != nil {
		return nil, err
	}
	return &Catalog{entries: entries}, nil
}

// Load reads a manifest file. The catalog remembers the path so
// Reload and Watch can reread it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "read catalog")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.path = path
	return c, nil
}

func parseEntries(data []byte) (map[string][]entry, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindValidation, err, "parse catalog")
	}

	out := make(map[string][]entry, len(m.Assets))
	for i, a := range m.Assets {
		if a.Name == "" {
			return nil, errors.New(errors.PhaseLoad, errors.KindValidation).
				Detail("asset %d has no name", i).Build()
		}
		if !a.Key.IsValid() {
			return nil, errors.New(errors.PhaseLoad, errors.KindValidation).
				Detail("asset %q has no key", a.Name).Build()
		}
		v, err := parseVersion(a.Version)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindValidation).
				Detail("asset %q version %q: %v", a.Name, a.Version, err).Build()
		}
		out[a.Name] = append(out[a.Name], entry{version: *v, key: a.Key})
	}
	return out, nil
}

// parseVersion accepts short forms like "1" or "1.2" by padding the
// missing components with zeros.
func parseVersion(s string) (*semver.Version, error) {
	for strings.Count(s, ".") < 2 {
		s += ".0"
	}
	return semver.NewVersion(s)
}

// Resolve returns the key for a logical name. A bare name resolves to
// its newest version. A versioned name ("hero-mesh@1.2") resolves to
// the newest row with the same major version that is not older than
// the one requested.
func (c *Catalog) Resolve(name string) (resourcepool.Key, error) {
	base := name
	var want *semver.Version
	if idx := strings.LastIndex(name, "@"); idx >= 0 {
		v, err := parseVersion(name[idx+1:])
		if err != nil {
			return "", errors.New(errors.PhaseLoad, errors.KindValidation).
				Detail("bad version in %q: %v", name, err).Build()
		}
		base = name[:idx]
		want = v
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := c.entries[base]
	if len(candidates) == 0 {
		return "", errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("no catalog entry named %q", base).Build()
	}

	var best *entry
	for i := range candidates {
		e := &candidates[i]
		if want != nil && !compatible(e.version, *want) {
			continue
		}
		if best == nil || best.version.LessThan(e.version) {
			best = e
		}
	}
	if best == nil {
		return "", errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("no entry for %q compatible with %s", base, want).Build()
	}
	return best.key, nil
}

// compatible reports whether a row can serve a request: same major
// version and not older than asked for.
func compatible(have, want semver.Version) bool {
	if have.Major != want.Major {
		return false
	}
	return !have.LessThan(want)
}

// Names returns the logical names in the catalog, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of manifest rows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, es := range c.entries {
		n += len(es)
	}
	return n
}

// Reload rereads the manifest file and swaps the entry set. The old
// entries stay in place when the reread fails.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return errors.Misuse(errors.PhaseLoad, "", "catalog was not loaded from a file")
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "read catalog")
	}
	entries, err := parseEntries(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	Logger().Debug("catalog reloaded",
		zap.String("path", c.path),
		zap.Int("names", len(entries)))
	return nil
}

// Watch reloads the catalog whenever the manifest file is written.
// It returns after the watch is installed; reloading runs in the
// background until ctx is done. Reload failures are logged and the
// previous entries stay live.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return errors.Misuse(errors.PhaseLoad, "", "catalog was not loaded from a file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "create watcher")
	}
	if err := watcher.Add(c.path); err != nil {
		watcher.Close()
		return errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "watch catalog")
	}
	go c.watch(ctx, watcher)
	return nil
}

func (c *Catalog) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors save in bursts. Let the burst settle so the
			// file is not read half written.
		settle:
			for {
				time.Sleep(10 * time.Millisecond)
				select {
				case _, ok := <-watcher.Events:
					if !ok {
						return
					}
				default:
					break settle
				}
			}
			if err := c.Reload(); err != nil {
				Logger().Warn("catalog reload failed",
					zap.String("path", c.path),
					zap.Error(err))
			}
			// Editors replace files by rename, which drops the watch
			// on the old inode.
			if err := watcher.Add(c.path); err != nil {
				Logger().Warn("catalog rewatch failed",
					zap.String("path", c.path),
					zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			Logger().Warn("catalog watcher error", zap.Error(err))
		}
	}
}
