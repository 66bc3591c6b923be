// Package keyringctl is the operator command line for the keyring server.
// The crypto commands run offline; the user and import commands open the
// same backends the server uses.
package keyringctl

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// OpenBackendFunc connects to the server's storage using the config file at
// configPath ("" for defaults and environment only).
type OpenBackendFunc func(ctx context.Context, configPath string) (Backend, error)

// Options carries the command's I/O and its backend factory. Zero values
// mean the process's standard streams and OpenServerBackend.
type Options struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	OpenBackend OpenBackendFunc
}

type cli struct {
	opts       Options
	prompt     *prompter
	configPath string
}

// NewRootCommand builds the keyringctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.OpenBackend == nil {
		opts.OpenBackend = func(ctx context.Context, configPath string) (Backend, error) {
			return OpenServerBackend(ctx, configPath, os.Environ(), opts.Err)
		}
	}

	c := &cli{opts: opts, prompt: newPrompter(opts.In, opts.Err)}

	root := &cobra.Command{
		Use:           "keyringctl",
		Short:         "Operator tool for the keyring server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "server config file (json or yaml)")

	root.AddCommand(
		c.hashPasswordCmd(),
		c.verifyPasswordCmd(),
		c.keygenCmd(),
		c.encryptCmd(),
		c.decryptCmd(),
		c.escrowCmd(),
		c.userCmd(),
		c.importCmd(),
	)
	return root
}

// Execute runs the command tree against args.
func Execute(ctx context.Context, opts Options, args []string) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// readInput returns the contents of path, or all of stdin when path is "".
func (c *cli) readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(c.prompt.in)
	}
	return os.ReadFile(path)
}
