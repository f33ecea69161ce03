package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xfeldman/arcbox/internal/archive"
	"github.com/xfeldman/arcbox/internal/catalog"
	"github.com/xfeldman/arcbox/internal/flock"
	"github.com/xfeldman/arcbox/internal/registry"
)

// lockContainer takes the cross-process lock for the container file
// filename. With --no-wait a held lock fails with flock.ErrLocked instead
// of blocking.
func (a *app) lockContainer(filename string) (*flock.Lock, error) {
	acquire := flock.Acquire
	if a.noWait {
		acquire = flock.TryAcquire
	}
	l, err := acquire(flock.Path(a.cfg.LockDir, filename))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", filename, err)
	}
	return l, nil
}

// container returns the registered container name.
func (a *app) container(name string) (*archive.Container, error) {
	c, err := a.reg.Lookup(name)
	if errors.Is(err, registry.ErrKeyNotFound) {
		return nil, fmt.Errorf("container %q is not registered (try: arcbox load %s)", name, name)
	}
	return c, err
}

// load registers name from where the catalog last saw it, or from the
// working directory with the configured extension.
func (a *app) load(name string) (*archive.Container, error) {
	saved, err := a.db.GetContainer(name)
	if err != nil {
		return nil, fmt.Errorf("get container: %w", err)
	}
	if saved == nil {
		return a.reg.Load(name, a.cfg.WorkDir)
	}
	return a.reg.LoadWithExtension(name, saved.Dir, saved.Ext)
}

func (a *app) remember(c *archive.Container) error {
	return a.db.SaveContainer(&catalog.Container{
		Name: c.Name(),
		Dir:  c.Store().Dir(),
		Ext:  c.Extension(),
	})
}

// confirm asks on stdin before an existing container is reset.
func (a *app) confirm(name string, existing registry.Descriptor) bool {
	fmt.Fprintf(a.out, "container %s already exists (%d bytes, %d members, modified %s).\n",
		existing.Path, existing.Size, len(existing.Members),
		existing.ModTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "Overwrite %s with an empty container? [y/N] ", name)

	line, _ := bufio.NewReader(a.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) newCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a container and register it",
		Long: `Create an empty container NAME.<ext> in the working directory and register it.

If the file already exists you are asked before it is replaced with an empty
container. Use --force to skip the question.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			name := args[0]
			l, err := a.lockContainer(name + "." + a.reg.Extension())
			if err != nil {
				return err
			}
			defer l.Release()

			confirm := a.confirm
			if force {
				confirm = nil
			}
			created, err := a.reg.Create(name, a.cfg.WorkDir, confirm)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(a.out, "kept existing container")
				return nil
			}
			c, err := a.reg.Lookup(name)
			if err != nil {
				return err
			}
			if err := a.remember(c); err != nil {
				return fmt.Errorf("save container: %w", err)
			}
			fmt.Fprintln(a.out, c.Path())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing container without asking")
	return cmd
}

func (a *app) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load NAME",
		Short: "Register an existing container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			c, err := a.load(args[0])
			if err != nil {
				return err
			}
			if err := a.remember(c); err != nil {
				return fmt.Errorf("save container: %w", err)
			}
			fmt.Fprintf(a.out, "loaded %s (%d members)\n", c.Filename(), len(c.Members()))
			return nil
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if a.reg.Len() == 0 {
				fmt.Fprintln(a.out, "No containers.")
				return nil
			}
			fmt.Fprintf(a.out, "%-20s %-8s %s\n", "NAME", "MEMBERS", "PATH")
			for name, c := range a.reg.All() {
				fmt.Fprintf(a.out, "%-20s %-8d %s\n", name, len(c.Members()), c.Path())
			}
			return nil
		},
	}
}

func (a *app) closeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "close [NAME]",
		Short: "Unregister a container (the file is kept)",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if all {
				a.reg.CloseAll()
				return a.db.DeleteAllContainers()
			}
			name := args[0]
			a.reg.Close(name)
			err := a.db.DeleteContainer(name)
			if err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("close %s: %w", name, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "unregister every container")
	return cmd
}
