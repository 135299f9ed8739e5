package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/catalog"
	"github.com/wippyai/resource-pool/loaders/wasmloader"
	"github.com/wippyai/resource-pool/pool"
)

func main() {
	var (
		dir         = flag.String("dir", ".", "Directory wasm keys resolve against")
		catalogPath = flag.String("catalog", "", "Catalog manifest mapping names to keys")
		name        = flag.String("name", "", "Catalog name to resolve (name or name@version)")
		key         = flag.String("key", "", "Pool key of the wasm module (path under -dir)")
		spawnN      = flag.Int("spawn", 1, "Number of instances to spawn")
		funcName    = flag.String("call", "", "Exported function to call on each instance")
		limit       = flag.Int64("limit", 0, "Max concurrent loads (0 = unlimited)")
		verbose     = flag.Bool("v", false, "Log pool internals to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pool.SetLogger(logger)
		wasmloader.SetLogger(logger)
		catalog.SetLogger(logger)
	}

	if *interactive {
		if err := runInteractive(*dir, *catalogPath, *limit); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *key == "" && *name == "" {
		fmt.Fprintln(os.Stderr, "Usage: pooltop -key <module.wasm> [-dir d] [-spawn n] [-call fn]")
		fmt.Fprintln(os.Stderr, "       pooltop -catalog assets.json -name <name[@version]> [-spawn n]")
		fmt.Fprintln(os.Stderr, "       pooltop -i [-dir d] [-catalog assets.json]  (interactive mode)")
		os.Exit(1)
	}

	if err := run(*dir, *catalogPath, *name, *key, *spawnN, *funcName, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, catalogPath, name, key string, spawnN int, funcName string, limit int64) error {
	ctx := context.Background()

	poolKey := resourcepool.Key(key)
	if name != "" {
		if catalogPath == "" {
			return fmt.Errorf("-name needs -catalog")
		}
		cat, err := catalog.Load(catalogPath)
		if err != nil {
			return err
		}
		poolKey, err = cat.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Printf("Resolved %s -> %s\n", name, poolKey)
	}

	loader, err := wasmloader.NewWithConfig(ctx, wasmloader.Config{
		Source: dirSource(dir),
	})
	if err != nil {
		return fmt.Errorf("create loader: %w", err)
	}
	defer loader.Close(ctx)

	loc := pool.NewLocator(pool.Config{
		Loader:  resourcepool.LimitLoader(loader, limit),
		Factory: wasmloader.NewFactory(loader),
		Kind:    "wasm",
	})

	h, err := loc.Handler(poolKey)
	if err != nil {
		return err
	}
	if err := h.RetainAndWait(ctx); err != nil {
		return err
	}

	asset, err := h.Asset()
	if err != nil {
		return err
	}
	module := asset.(*wasmloader.Module)

	fmt.Printf("Module: %s\n", poolKey)
	fmt.Printf("\nExported functions:\n")
	for _, export := range module.Exports() {
		fmt.Printf("  %s\n", export)
	}

	leases := make([]*pool.Lease, 0, spawnN)
	for i := 0; i < spawnN; i++ {
		lease, err := h.Spawn(ctx, resourcepool.SpawnParams{
			InstanceID: fmt.Sprintf("pooltop-%d", i),
		})
		if err != nil {
			return fmt.Errorf("spawn %d: %w", i, err)
		}
		leases = append(leases, lease)
	}
	fmt.Printf("\nSpawned %d instance(s)\n", len(leases))

	if funcName != "" {
		fmt.Println()
		for _, lease := range leases {
			inst := lease.Instance().(*wasmloader.ModuleInstance)
			results, err := inst.Call(ctx, funcName)
			if err != nil {
				return fmt.Errorf("call %s on %s: %w", funcName, lease.ID(), err)
			}
			fmt.Printf("  %s: %s() = %v\n", lease.ID(), funcName, results)
		}
	}

	fmt.Println("\nPool after spawn:")
	printStats(os.Stdout, loc.Registry().Stats())

	for _, lease := range leases {
		if err := lease.Despawn(); err != nil {
			return err
		}
	}
	if err := h.Release(); err != nil {
		return err
	}

	fmt.Println("\nPool after teardown:")
	printStats(os.Stdout, loc.Registry().Stats())
	return nil
}

func dirSource(dir string) wasmloader.SourceFunc {
	return func(_ context.Context, key resourcepool.Key) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(string(key))))
	}
}

func printStats(w io.Writer, stats []pool.Stats) {
	fmt.Fprintf(w, "  %-28s %-8s %-10s %8s %6s %6s %12s %8s\n",
		"KEY", "KIND", "STATUS", "RETAINS", "LIVE", "IDLE", "CONSTRUCTED", "REUSED")
	for _, s := range stats {
		fmt.Fprintf(w, "  %-28s %-8s %-10s %8d %6d %6d %12d %8d\n",
			s.Key, s.Kind, s.Status, s.Retains, s.Live, s.Idle, s.Constructed, s.Reused)
	}
}
