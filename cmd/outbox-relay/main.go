package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/RaiderRus/moodTrack/outboxrelay"
)

func main() {
	if err := outboxrelay.Run(); err != nil {
		log.Error().Err(err).Msg("outbox-relay exited with error")
		os.Exit(1)
	}
}
