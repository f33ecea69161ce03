package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xfeldman/arcbox/internal/archive"
)

// memberRun opens state, locks the container and hands it to fn.
func (a *app) memberRun(lock bool, fn func(c *archive.Container, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(); err != nil {
			return err
		}
		c, err := a.container(args[0])
		if err != nil {
			return err
		}
		if lock {
			l, err := a.lockContainer(c.Filename())
			if err != nil {
				return err
			}
			defer l.Release()
		}
		return fn(c, args)
	}
}

// content returns the literal text argument, or stdin when it is absent or "-".
// The bool reports whether the content came from the argument.
func (a *app) content(args []string) ([]byte, bool, error) {
	if len(args) > 2 && args[2] != "-" {
		return []byte(args[2]), true, nil
	}
	data, err := io.ReadAll(a.in)
	if err != nil {
		return nil, false, fmt.Errorf("read stdin: %w", err)
	}
	return data, false, nil
}

func (a *app) membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members NAME",
		Short: "List the entries of a container in file order",
		Args:  cobra.ExactArgs(1),
		RunE: a.memberRun(false, func(c *archive.Container, args []string) error {
			names, err := c.Namelist()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.out, n)
			}
			return nil
		}),
	}
}

func (a *app) writeCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "write NAME MEMBER [TEXT|-]",
		Short: "Stage content as MEMBER and add it to the container",
		Long: `Write TEXT (or stdin when TEXT is omitted or "-") to MEMBER in the working
directory and add it as a new entry. Text arguments are encoded with the
configured encoding; stdin is stored as is.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			data, isText, err := a.content(args)
			if err != nil {
				return err
			}
			var opts []archive.SourceOption
			if keep {
				opts = append(opts, archive.KeepSource())
			}
			if isText {
				return c.WriteText(args[1], string(data), opts...)
			}
			return c.WriteBinary(args[1], data, opts...)
		}),
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the staged file in the working directory")
	return cmd
}

func (a *app) appendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append NAME MEMBER [TEXT|-]",
		Short: "Append content to an existing member",
		Args:  cobra.RangeArgs(2, 3),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			data, isText, err := a.content(args)
			if err != nil {
				return err
			}
			if isText {
				return c.AppendText(args[1], string(data))
			}
			return c.AppendBinary(args[1], data)
		}),
	}
}

func (a *app) addCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "add NAME MEMBER",
		Short: "Add the staged file MEMBER from the working directory",
		Args:  cobra.ExactArgs(2),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			if keep {
				return c.Add(args[1], archive.KeepSource())
			}
			return c.Add(args[1])
		}),
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the staged file in the working directory")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "update NAME MEMBER",
		Short: "Replace MEMBER with the staged file of the same name",
		Args:  cobra.ExactArgs(2),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			if keep {
				return c.Update(args[1], archive.KeepSource())
			}
			return c.Update(args[1])
		}),
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the staged file in the working directory")
	return cmd
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat NAME MEMBER",
		Short: "Print the latest content of MEMBER",
		Args:  cobra.ExactArgs(2),
		RunE: a.memberRun(false, func(c *archive.Container, args []string) error {
			data, err := c.ReadBinary(args[1])
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		}),
	}
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract NAME MEMBER",
		Short: "Copy MEMBER out into the working directory",
		Args:  cobra.ExactArgs(2),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			path, err := c.Extract(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, path)
			return nil
		}),
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME MEMBER",
		Short: "Remove every entry named MEMBER",
		Args:  cobra.ExactArgs(2),
		RunE: a.memberRun(true, func(c *archive.Container, args []string) error {
			return c.Remove(args[1])
		}),
	}
}
