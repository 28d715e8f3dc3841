package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/formauth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print the stored form of a password",
		Long: `Hash a password with the configured algorithm and cost. The password
is read from the first line of standard input when not given as an
argument, which keeps it out of the shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHashPassword,
	}
	cmd.Flags().String("algorithm", formauth.PasswordArgon2id, "argon2id or bcrypt")
	return cmd
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	raw, err := passwordArg(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	hash, err := hashWith(s, raw)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func passwordArg(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INVALID_ARGUMENT").Wrapf(err, "read password")
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("INVALID_ARGUMENT").Errorf("password is empty")
	}
	return line, nil
}
