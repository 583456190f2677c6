package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano                 // always initialize base logger with timestamp.
	base := zerolog.New(os.Stderr).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel) // set debug level.
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel) // set info level.
	}
}

// LogChallenge logs a built license challenge. Key material is never logged;
// only sizes and identifiers appear in the output.
func LogChallenge(system, sessionID, server string, challengeSize int) {
	log.Info().
		Str("event", "challenge_built").
		Str("system", system).
		Str("session_id", sessionID).
		Str("server", server).
		Int("challenge_bytes", challengeSize).
		Msg("built license challenge")
}

// LogLicense logs a processed license response with the count of recovered
// keys. The keys themselves stay out of the log stream.
func LogLicense(system, sessionID string, responseSize, keyCount int) {
	log.Info().
		Str("event", "license_processed").
		Str("system", system).
		Str("session_id", sessionID).
		Int("response_bytes", responseSize).
		Int("keys_recovered", keyCount).
		Msg("processed license response")
}
