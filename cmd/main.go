package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	app := &cli.Command{
		Name:    "autodl",
		Usage:   "Download media with yt-dlp and move it into place with rsync",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (.yml or .toml)",
				Value:   "autodl.yml",
				Sources: cli.EnvVars("AUTODL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: trace, debug, info, warn, error",
				Value:   "info",
				Sources: cli.EnvVars("AUTODL_LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Write logs as JSON instead of console output",
				Sources: cli.EnvVars("AUTODL_LOG_JSON"),
			},
		},
		Before:   setupLogging,
		Action:   serve,
		Commands: []*cli.Command{serveCommand(), checkCommand(), updateCommand()},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cmd.String("log-level")))
	if err != nil {
		return ctx, fmt.Errorf("invalid log level %q: %w", cmd.String("log-level"), err)
	}
	zerolog.SetGlobalLevel(level)
	if cmd.Bool("log-json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return ctx, nil
}
