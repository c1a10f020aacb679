// Package statsd wraps the few statsd calls the scheduler makes so the datadog client stays behind
// one file. The default client discards everything until Init is called.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitStageStat records how long one stage took.
func EmitStageStat(start time.Time, stage string) {
	err := Client().Timing("stage", time.Since(start), []string{"stage:" + stage}, 1)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to emit stage stat")
	}
}

// EmitSystemStat records how long one system took.
func EmitSystemStat(duration time.Duration, stage, system string) {
	err := Client().Timing("system", duration, []string{"stage:" + stage, "system:" + system}, 1)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("failed to emit system stat")
	}
}

// CountStageFailure increments the failed stage counter.
func CountStageFailure(stage string) {
	if err := Client().Incr("stage.failed", []string{"stage:" + stage}, 1); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to emit stage failure")
	}
}

// Init replaces the global client with one that sends to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		ddstatsd.WithNamespace("loom"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}
