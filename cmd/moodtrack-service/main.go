package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/RaiderRus/moodTrack/moodservice"
)

func main() {
	if err := moodservice.Run(); err != nil {
		log.Error().Err(err).Msg("moodtrack-service exited with error")
		os.Exit(1)
	}
}
