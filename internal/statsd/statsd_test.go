package statsd

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { client = &ddstatsd.NoOpClient{} })

	assert.Error(t, Init("", nil))
	assert.IsType(t, &ddstatsd.NoOpClient{}, Client())

	require.NoError(t, Init("127.0.0.1:8125", []string{"env:test"}))
	assert.NotNil(t, Client())
	assert.NotPanics(t, func() {
		EmitStageStat(time.Now(), "update")
		EmitSystemStat(time.Millisecond, "update", "MovementSystem")
		CountStageFailure("update")
	})
}
