// Package testlog routes test logging through the shared zerolog setup.
package testlog

import (
	"testing"

	"github.com/danmuck/hfpag/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and brackets t with start and end lines.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("testlog start")
	t.Cleanup(func() {
		log.Info().Str("test", t.Name()).Bool("failed", t.Failed()).Msg("testlog end")
	})
}
