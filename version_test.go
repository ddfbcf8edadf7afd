package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "3.1.1", MQTTv311.String())
	assert.Equal(t, "5.0", MQTTv50.String())
	assert.Equal(t, "unknown", Version(3).String())

	assert.True(t, MQTTv311.Valid())
	assert.True(t, MQTTv50.Valid())
	assert.False(t, Version(0).Valid())
	assert.False(t, Version(6).Valid())

	assert.False(t, MQTTv311.HasProperties())
	assert.True(t, MQTTv50.HasProperties())
}
