package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/PentesterFlow/sitecrawl/internal/lockfile"
	"github.com/PentesterFlow/sitecrawl/internal/store"
)

func runUnlock(cmd *cobra.Command, args []string) error {
	config, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	guard := lockfile.New(config.ProjectDir)
	marker, err := guard.Read()
	if errors.Is(err, lockfile.ErrNotLocked) {
		fmt.Fprintf(cmd.ErrOrStderr(), "No lock for %s.\n", config.Target)
		return nil
	}
	if err != nil {
		// An unreadable marker is still removed.
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	if err := guard.RemoveLockFile(); err != nil {
		return err
	}

	if marker != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed lock of run %s (pid %d, started %s).\n",
			marker.RunID, marker.PID, marker.StartedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed %s.\n", guard.Path())
	}
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	config, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	guard := lockfile.New(config.ProjectDir)
	locked, err := guard.HasLockFile()
	if err != nil {
		return err
	}
	if locked && !force {
		return fmt.Errorf("a crawl holds %s; use --force to clear anyway", guard.Path())
	}

	s, err := store.Open(config.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, coll := range []string{store.CollectionFoundURLs, store.CollectionVisitedURLs} {
		n, err := store.Drain(ctx, s, coll, 0)
		if err != nil {
			return fmt.Errorf("failed to clear %s: %w", coll, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cleared %d documents from %s.\n", n, coll)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	config, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.SetTitle("Crawl status: " + config.Target)

	t.AppendRow(table.Row{"Project", config.ProjectDir})

	guard := lockfile.New(config.ProjectDir)
	marker, err := guard.Read()
	switch {
	case errors.Is(err, lockfile.ErrNotLocked):
		t.AppendRow(table.Row{"Lock", "none"})
	case err != nil:
		t.AppendRow(table.Row{"Lock", err.Error()})
	default:
		t.AppendRow(table.Row{"Lock", marker.RunID})
		t.AppendRow(table.Row{"Lock PID", marker.PID})
		t.AppendRow(table.Row{"Lock host", marker.Host})
		t.AppendRow(table.Row{"Lock started", marker.StartedAt.Format(time.RFC3339)})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{"Store", config.Store.Backend})

	// A running bolt crawl holds the file lock, so skip the store while
	// locked.
	if marker != nil && config.Store.Backend == store.BackendBolt {
		t.AppendRow(table.Row{"Stored state", "unavailable while locked"})
		t.Render()
		return nil
	}

	s, err := store.Open(config.Store)
	if err != nil {
		t.AppendRow(table.Row{"Stored state", err.Error()})
		t.Render()
		return nil
	}
	defer s.Close()

	ctx := context.Background()
	for _, coll := range []string{store.CollectionFoundURLs, store.CollectionVisitedURLs, store.CollectionScreenshots} {
		n, err := s.Count(ctx, coll)
		if err != nil {
			t.AppendRow(table.Row{coll, err.Error()})
			continue
		}
		t.AppendRow(table.Row{coll, n})
	}

	t.Render()
	return nil
}
