package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"T_INT":      "42",
		"T_BAD_INT":  "forty",
		"T_BOOL":     "true",
		"T_DURATION": "1500ms",
		"T_ZONE":     "America/Sao_Paulo",
		"T_BAD_ZONE": "Mars/Olympus",
	}
	defer func() { Env = nil }()

	assert.Equal(t, 42, GetInt("T_INT", 1))
	assert.Equal(t, 1, GetInt("T_BAD_INT", 1))
	assert.Equal(t, 7, GetInt("T_MISSING", 7))
	assert.True(t, GetBool("T_BOOL", false))
	assert.False(t, GetBool("T_MISSING", false))
	assert.Equal(t, 1500*time.Millisecond, GetDuration("T_DURATION", time.Second))
	assert.Equal(t, time.Second, GetDuration("T_MISSING", time.Second))
	assert.Equal(t, "America/Sao_Paulo", GetLocation("T_ZONE").String())
	assert.Equal(t, time.Local, GetLocation("T_BAD_ZONE"))
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	t.Setenv("T_SHADOWED", "from-os")
	Env = map[string]string{"T_SHADOWED": "from-file"}
	defer func() { Env = nil }()

	assert.Equal(t, "from-file", GetEnv("T_SHADOWED", "def"))
	assert.Equal(t, "def", GetEnv("T_UNSET_KEY", "def"))
}
