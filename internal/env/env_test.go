package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Setenv(Listen, "0.0.0.0:4444")
	assert.Equal(t, "0.0.0.0:4444", String(Listen, "fallback"))
	assert.Equal(t, "fallback", String("VIZCORE_UNSET", "fallback"))
}

func TestInt(t *testing.T) {
	t.Setenv(TileWidth, "128")
	assert.Equal(t, 128, Int(TileWidth, 256))
	t.Setenv(TileHeight, "not-a-number")
	assert.Equal(t, 256, Int(TileHeight, 256))
	assert.Equal(t, 64, Int("VIZCORE_UNSET", 64))
}

func TestInt64(t *testing.T) {
	t.Setenv(ShmSize, "1099511627776")
	assert.Equal(t, int64(1)<<40, Int64(ShmSize, 0))
}
