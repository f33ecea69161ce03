package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xfeldman/arcbox/internal/archive"
	"github.com/xfeldman/arcbox/internal/watcher"
)

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch NAME",
		Short: "Add or update members as staged files change",
		Long: `Watch the working directory and pack every file that is created or
written there into container NAME. Existing members are updated, new names
are added. Staged files are kept. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			c, err := a.container(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, c, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before changes are packed (default 500ms)")
	return cmd
}

func (a *app) watch(ctx context.Context, c *archive.Container, debounce time.Duration) error {
	cfg := watcher.DefaultConfig(c.Store().Dir())
	if debounce > 0 {
		cfg.DebounceDur = debounce
	}
	// Containers and temp files are rewritten in the same directory.
	suffix := "." + c.Extension()
	cfg.Ignore = func(name string) bool {
		return strings.HasPrefix(name, ".") || strings.HasSuffix(name, suffix)
	}

	w, err := watcher.New(cfg)
	if err != nil {
		return err
	}
	defer w.Stop()

	changes, err := w.Start()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "watching %s for %s\n", cfg.Dir, c.Filename())

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			a.log.Warn("watch: watcher error", zap.Error(err))
		case names := <-changes:
			if err := a.sync(c, names); err != nil {
				return err
			}
		}
	}
}

// sync packs the staged files names into c under the container lock.
func (a *app) sync(c *archive.Container, names []string) error {
	l, err := a.lockContainer(c.Filename())
	if err != nil {
		return err
	}
	defer l.Release()

	for _, name := range names {
		verb := "added"
		if c.Has(name) {
			verb = "updated"
			err = c.Update(name, archive.KeepSource())
		} else {
			err = c.Add(name, archive.KeepSource())
		}
		if errors.Is(err, archive.ErrInvalidName) {
			a.log.Warn("watch: skipping file", zap.String("name", name), zap.Error(err))
			continue
		}
		if err != nil {
			return fmt.Errorf("sync %s: %w", name, err)
		}
		fmt.Fprintf(a.out, "%s %s\n", verb, name)
	}
	return nil
}
