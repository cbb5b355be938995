package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())
}

func TestInitProfilingRejectsUnknownProfileType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{
		Enabled:      true,
		ServiceName:  "nfs41daemon",
		Endpoint:     "http://localhost:4040",
		ProfileTypes: []string{"not-a-real-profile-type"},
	})
	require.Error(t, err)
}

func TestParseProfileTypeKnownValues(t *testing.T) {
	for _, pt := range []string{
		"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space",
		"goroutines", "mutex_count", "mutex_duration", "block_count", "block_duration",
	} {
		_, err := parseProfileType(pt)
		assert.NoErrorf(t, err, "profile type %q should be recognized", pt)
	}
}
