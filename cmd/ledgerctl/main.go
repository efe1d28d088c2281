package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"review_ledger/internal/adapters/observability"
)

func main() {
	log.Logger = observability.NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"), "ledgerctl")
	if err := rootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
