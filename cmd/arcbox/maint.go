package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xfeldman/arcbox/internal/atomicfile"
	"github.com/xfeldman/arcbox/internal/config"
)

func (a *app) logCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log NAME",
		Short: "Show the event log of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			filename := args[0] + "." + a.reg.Extension()
			if c, err := a.reg.Lookup(args[0]); err == nil {
				filename = c.Filename()
			}
			events, err := a.db.Events(filename, limit)
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(a.out, "No events.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(a.out, "%s  %-8s %-24s %d\n",
					e.Time.Format(time.RFC3339), e.Op, e.Member, e.Size)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of most recent events to show (0 = all)")
	return cmd
}

func (a *app) gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove stale temp files and expired events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			removed, err := atomicfile.CleanStale(a.cfg.WorkDir, a.cfg.StaleTempAge)
			if err != nil {
				return fmt.Errorf("clean temp files: %w", err)
			}
			for _, name := range removed {
				a.log.Info("gc: removed stale temp file", zap.String("name", name))
			}
			fmt.Fprintf(a.out, "removed %d temp files\n", len(removed))

			if a.cfg.EventRetention > 0 {
				n, err := a.db.PruneEvents(time.Now().Add(-a.cfg.EventRetention))
				if err != nil {
					return fmt.Errorf("prune events: %w", err)
				}
				fmt.Fprintf(a.out, "pruned %d events\n", n)
			}
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(a.out, path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
