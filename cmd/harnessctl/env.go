package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cklxx/NanoBee/internal/config"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/urfave/cli/v3"
)

// env is what every sub-command builds from the global flags.
type env struct {
	log    *logger.Logger
	client *harness.Client
	out    io.Writer
}

func newEnv(cmd *cli.Command) (*env, error) {
	log, err := logger.New(config.LoggerConfig{
		Level:       cmd.String(logLevelFlag),
		Encoding:    "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	client := harness.NewClient(harness.ClientConfig{
		BaseURL:   cmd.String(apiFlag),
		Timeout:   cmd.Duration(timeoutFlag),
		UserAgent: "harnessctl",
		Logger:    log.Named("harness"),
	})
	return &env{log: log, client: client, out: cmd.Root().Writer}, nil
}

func (e *env) printJSON(v interface{}) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireArg returns the first positional argument or a usage error.
func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", cli.Exit(fmt.Sprintf("missing %s argument", name), 2)
	}
	return v, nil
}
