package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_StableIdentity(t *testing.T) {
	p := NewProvider()

	id := p.BootID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, p.BootID())
	assert.NotEqual(t, id, NewProvider().BootID())

	launched := time.Unix(0, p.LaunchTimestamp())
	assert.WithinDuration(t, time.Now(), launched, time.Minute)
}

func TestProvider_Stamp(t *testing.T) {
	p := NewProvider()

	meta := p.Stamp(map[string]interface{}{"node_count": 3})
	assert.Equal(t, 3, meta["node_count"])
	assert.Equal(t, p.BootID(), meta[BootIDKey])
	assert.NotEmpty(t, meta[LaunchTimestampKey])
	assert.True(t, p.Owns(meta))

	assert.True(t, p.Owns(p.Stamp(nil)))
	assert.False(t, NewProvider().Owns(meta))
	assert.False(t, p.Owns(nil))
	assert.Empty(t, BootIDOf(map[string]interface{}{BootIDKey: 42}))
}
