package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/credentials"
	"github.com/MrEthical07/formauth/internal/store"
)

// userStore is the part of *credentials.Postgres the user commands use.
type userStore interface {
	Create(ctx context.Context, u formauth.User) error
	SetEnabled(ctx context.Context, username string, enabled bool) error
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

// openUserStore is replaced in tests.
var openUserStore = func(ctx context.Context, databaseURL string) (userStore, func(), error) {
	pool, err := store.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return credentials.NewPostgres(pool), pool.Close, nil
}

// NewUserCmd creates the user command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users in PostgreSQL",
	}
	cmd.PersistentFlags().String("algorithm", formauth.PasswordArgon2id, "argon2id or bcrypt")

	create := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create an enabled user; the password is read from standard input",
		Args:  cobra.ExactArgs(1),
		RunE: withUserStore(func(cmd *cobra.Command, s settings, users userStore, args []string) error {
			raw, err := passwordArg(cmd.InOrStdin(), nil)
			if err != nil {
				return err
			}
			hash, err := hashWith(s, raw)
			if err != nil {
				return err
			}
			authorities, _ := cmd.Flags().GetStringSlice("authority")

			if err := users.Create(cmd.Context(), formauth.User{
				Username:              args[0],
				PasswordHash:          hash,
				Authorities:           authorities,
				Enabled:               true,
				AccountNonExpired:     true,
				AccountNonLocked:      true,
				CredentialsNonExpired: true,
			}); err != nil {
				return err
			}
			cmd.Printf("created user %s\n", args[0])
			return nil
		}),
	}
	create.Flags().StringSlice("authority", []string{"ROLE_USER"}, "granted authority, repeatable")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "set-password USERNAME",
		Short: "Replace a user's password; the new password is read from standard input",
		Args:  cobra.ExactArgs(1),
		RunE: withUserStore(func(cmd *cobra.Command, s settings, users userStore, args []string) error {
			raw, err := passwordArg(cmd.InOrStdin(), nil)
			if err != nil {
				return err
			}
			hash, err := hashWith(s, raw)
			if err != nil {
				return err
			}
			if err := users.UpdatePasswordHash(cmd.Context(), args[0], hash); err != nil {
				return err
			}
			cmd.Printf("password updated for %s\n", args[0])
			return nil
		}),
	})

	for _, enabled := range []bool{true, false} {
		use, verb := "enable USERNAME", "enabled"
		if !enabled {
			use, verb = "disable USERNAME", "disabled"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: "Mark a user " + verb,
			Args:  cobra.ExactArgs(1),
			RunE: withUserStore(func(cmd *cobra.Command, _ settings, users userStore, args []string) error {
				if err := users.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
					return err
				}
				cmd.Printf("user %s %s\n", args[0], verb)
				return nil
			}),
		})
	}

	return cmd
}

func withUserStore(run func(cmd *cobra.Command, s settings, users userStore, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if s.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database_url or DATABASE_URL is required")
		}

		users, closeFn, err := openUserStore(cmd.Context(), s.DatabaseURL)
		if err != nil {
			return err
		}
		defer closeFn()

		return run(cmd, s, users, args)
	}
}

func hashWith(s settings, raw string) (string, error) {
	hasher, err := formauth.NewPasswordHasher(s.Auth.Password)
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").Wrapf(err, "build password hasher")
	}
	hash, err := hasher.Hash(raw)
	if err != nil {
		return "", oops.Code("INVALID_ARGUMENT").Wrapf(err, "hash password")
	}
	return hash, nil
}
