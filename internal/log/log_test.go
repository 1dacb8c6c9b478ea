package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChildLoggersChainDirectly(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	// The helpers return a pointer so event chains hang off the call
	// expression itself, the way every call site uses them.
	WithComponent("syncer").Info().Msg("cycle complete")
	WithJob("reconcile").Warn().Msg("skipping tick")
	WithBookingID("b1").Debug().Int("seats", 2).Msg("seats reserved")
	WithClassID("c1").Error().Msg("archive failed")

	out := buf.String()
	assert.Contains(t, out, `"component":"syncer"`)
	assert.Contains(t, out, `"job":"reconcile"`)
	assert.Contains(t, out, `"booking_id":"b1"`)
	assert.Contains(t, out, `"class_id":"c1"`)
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	WithComponent("http").Info().Msg("suppressed")
	WithComponent("http").Warn().Msg("emitted")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "emitted")
}
