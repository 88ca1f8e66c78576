package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/RaiderRus/moodTrack/inferenceservice"
)

func main() {
	if err := inferenceservice.Run(); err != nil {
		log.Error().Err(err).Msg("inference-service exited with error")
		os.Exit(1)
	}
}
