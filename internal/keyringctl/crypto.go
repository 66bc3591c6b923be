package keyringctl

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dinicsek/LovassyApp/internal/common"
	"github.com/dinicsek/LovassyApp/internal/cryptox"
	"github.com/dinicsek/LovassyApp/internal/server/escrow"
	"github.com/spf13/cobra"
)

var errPasswordMismatch = errors.New("password does not match")

func (c *cli) hashPasswordCmd() *cobra.Command {
	opts := cryptox.DefaultHasherOptions()

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a password hash record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasher, err := cryptox.NewHasher(opts)
			if err != nil {
				return err
			}
			password, err := c.prompt.NewSecret("Password: ")
			if err != nil {
				return err
			}
			record, err := hasher.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), record)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "PBKDF2 iterations")
	cmd.Flags().IntVar(&opts.SaltLength, "salt-length", opts.SaltLength, "salt length in bytes")
	cmd.Flags().IntVar(&opts.BytesRequested, "bytes", opts.BytesRequested, "derived key length in bytes")
	return cmd
}

func (c *cli) verifyPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-password RECORD",
		Short: "Check a password against a hash record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := cryptox.NewHasher(cryptox.DefaultHasherOptions())
			if err != nil {
				return err
			}
			password, err := c.prompt.Secret("Password: ")
			if err != nil {
				return err
			}
			if !hasher.VerifyPassword(password, args[0]) {
				return errPasswordMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

type keypairJSON struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an import keypair (base64, as JSON)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := cryptox.GenerateKeypair()
			if err != nil {
				return err
			}
			defer common.WipeByteArray(kp.PrivateKey)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(keypairJSON{
				PublicKey:  base64.StdEncoding.EncodeToString(kp.PublicKey),
				PrivateKey: base64.StdEncoding.EncodeToString(kp.PrivateKey),
			})
		},
	}
}

func (c *cli) encryptCmd() *cobra.Command {
	var publicKey, in string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an import payload for a public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, err := base64.StdEncoding.DecodeString(publicKey)
			if err != nil {
				return fmt.Errorf("public key: %w", err)
			}
			plaintext, err := c.readInput(in)
			if err != nil {
				return err
			}
			ciphertext, err := cryptox.EncryptFor(pub, plaintext)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(ciphertext)
			return err
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "recipient public key, base64")
	cmd.Flags().StringVar(&in, "in", "", "plaintext file (default stdin)")
	_ = cmd.MarkFlagRequired("public-key")
	return cmd
}

func (c *cli) decryptCmd() *cobra.Command {
	var keyFile, in string

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt an import payload with a private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			encoded, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			priv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
			if err != nil {
				return fmt.Errorf("private key: %w", err)
			}
			defer common.WipeByteArray(priv)

			ciphertext, err := c.readInput(in)
			if err != nil {
				return err
			}
			plaintext, err := cryptox.DecryptWith(priv, ciphertext)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(plaintext)
			return err
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "file holding the base64 private key")
	cmd.Flags().StringVar(&in, "in", "", "ciphertext file (default stdin)")
	_ = cmd.MarkFlagRequired("key-file")
	return cmd
}

func (c *cli) escrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Reset key password operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rewrap CONTAINER",
		Short: "Re-lock a base64 escrow container under a new reset key password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := base64.StdEncoding.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("container: %w", err)
			}
			oldSecret, err := c.prompt.Secret("Current reset key password: ")
			if err != nil {
				return err
			}
			newSecret, err := c.prompt.NewSecret("New reset key password: ")
			if err != nil {
				return err
			}
			rewrapped, err := escrow.Rewrap(container, oldSecret, newSecret, cryptox.DefaultKDFParams())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(rewrapped))
			return nil
		},
	})
	return cmd
}
