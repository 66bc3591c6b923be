package keyringctl

import (
	"context"
	"fmt"

	"github.com/dinicsek/LovassyApp/internal/server/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// withBackend opens the backend for one command and closes it afterwards.
func (c *cli) withBackend(ctx context.Context, fn func(Backend) error) error {
	b, err := c.opts.OpenBackend(ctx, c.configPath)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

// ensureEscrow asks for the reset key password when the configuration does
// not provide one.
func (c *cli) ensureEscrow(b Backend) error {
	if b.EscrowSet() {
		return nil
	}
	secret, err := c.prompt.Secret("Reset key password: ")
	if err != nil {
		return err
	}
	b.SetResetKeyPassword(secret)
	return nil
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user id: %w", err)
	}
	return id, nil
}

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var in services.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withBackend(cmd.Context(), func(b Backend) error {
				if err := c.ensureEscrow(b); err != nil {
					return err
				}
				password, err := c.prompt.NewSecret("Password: ")
				if err != nil {
					return err
				}
				u := in
				u.Password = password

				id, err := b.CreateUser(cmd.Context(), u)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "login email")
	create.Flags().StringVar(&in.Name, "name", "", "display name")
	create.Flags().StringVar(&in.OmCode, "om-code", "", "student identifier")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("om-code")

	kick := &cobra.Command{
		Use:   "kick USER_ID",
		Short: "End every session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return c.withBackend(cmd.Context(), func(b Backend) error {
				return b.KickUser(cmd.Context(), id)
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset-password USER_ID",
		Short: "Set a new password through the escrow copy of the master key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return c.withBackend(cmd.Context(), func(b Backend) error {
				if err := c.ensureEscrow(b); err != nil {
					return err
				}
				password, err := c.prompt.NewSecret("New password: ")
				if err != nil {
					return err
				}
				return b.ResetPassword(cmd.Context(), id, password)
			})
		},
	}

	cmd.AddCommand(create, kick, reset)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Manage queued grade imports",
	}

	var in string
	enqueue := &cobra.Command{
		Use:   "enqueue USER_ID",
		Short: "Queue an encrypted payload for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			ciphertext, err := c.readInput(in)
			if err != nil {
				return err
			}
			return c.withBackend(cmd.Context(), func(b Backend) error {
				return b.EnqueueImport(cmd.Context(), id, ciphertext)
			})
		},
	}
	enqueue.Flags().StringVar(&in, "in", "", "payload file (default stdin)")

	cmd.AddCommand(enqueue)
	return cmd
}
