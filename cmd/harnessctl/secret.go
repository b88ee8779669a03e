package main

import (
	"context"
	"fmt"

	"github.com/cklxx/NanoBee/pkg/utils/keygen"
	"github.com/urfave/cli/v3"
)

const bytesFlag = "bytes"

// newSecretCmd returns the command that prints a value for ppt.secret_key.
func newSecretCmd() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "generate a random ppt.secret_key",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: bytesFlag, Value: 32, Usage: "random bytes before encoding"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			secret, err := keygen.GenerateSecret(int(cmd.Int(bytesFlag)))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(cmd.Root().Writer, secret)
			return nil
		},
	}
}
