package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/nnfix/internal/host"
)

// errNothingToDo marks a manual run that found no text to correct.
var errNothingToDo = errors.New("no eligible text on page")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("nnfix failed")
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to the process exit status: 2 when the page could
// not be touched or had nothing to correct, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, host.ErrRestricted), errors.Is(err, errNothingToDo):
		return 2
	default:
		return 1
	}
}
