package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerRegistry_BuiltinsKnown(t *testing.T) {
	registry := NewTriggerRegistry()
	for _, trigger := range BuiltinTriggers() {
		assert.True(t, registry.Known(trigger), "builtin %s should be known", trigger)
	}
	assert.False(t, registry.Known("NOPE"))
}

func TestTriggerRegistry_RegisterCustomIdempotent(t *testing.T) {
	registry := NewTriggerRegistry()

	first := registry.RegisterCustom("DEPLOY_FINISHED")
	second := registry.RegisterCustom("DEPLOY_FINISHED")
	assert.Equal(t, first, second)
	assert.True(t, registry.Known("DEPLOY_FINISHED"))
	assert.Len(t, registry.CustomTriggers(), 1)
}

func TestTriggerRegistry_RegisterCustomBuiltinName(t *testing.T) {
	registry := NewTriggerRegistry()
	got := registry.RegisterCustom(string(TriggerNewProject))
	assert.Equal(t, TriggerNewProject, got)
	// Re-registering a builtin must not duplicate it as custom.
	assert.Empty(t, registry.CustomTriggers())
}
