package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/campus-portal-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	stdinFD          = func() int { return int(os.Stdin.Fd()) }

	errPasswordMismatch = errors.New("passwords do not match")
)

func newHashPasswordCmd() *cobra.Command {
	var skipConfirm bool
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Prompt for the admin password and print its bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pwd, err := prompt(cmd, "Enter password: ")
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				return errors.New("password must not be empty")
			}
			if !skipConfirm {
				again, err := prompt(cmd, "Confirm password: ")
				if err != nil {
					return err
				}
				if string(again) != string(pwd) {
					return errPasswordMismatch
				}
			}

			hash, err := service.HashPassword(string(pwd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipConfirm, "no-confirm", false, "do not ask for the password twice")
	return cmd
}

func prompt(cmd *cobra.Command, label string) ([]byte, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	pwd, err := readPasswordFunc(stdinFD())
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pwd, nil
}
