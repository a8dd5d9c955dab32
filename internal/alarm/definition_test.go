package alarm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewDefinition_AppliesDefaults(t *testing.T) {
	def := NewDefinition(uuid.New(), "wake", true)
	assert.Equal(t, 20, def.StartBrightnessPercent)
	assert.Equal(t, 100, def.TargetBrightnessPercent)
	assert.Equal(t, 30*time.Minute, def.RampDuration)
}

func TestClampedRampDuration(t *testing.T) {
	def := NewDefinition(uuid.New(), "wake", true)

	def.RampDuration = 100 * time.Millisecond
	assert.Equal(t, time.Second, def.ClampedRampDuration())

	def.RampDuration = 48 * time.Hour
	assert.Equal(t, 24*time.Hour, def.ClampedRampDuration())

	def.RampDuration = 5 * time.Minute
	assert.Equal(t, 5*time.Minute, def.ClampedRampDuration())
}

func TestEffectiveTarget_ClampsUpToStartWhenTargetIsLower(t *testing.T) {
	def := NewDefinition(uuid.New(), "dusk", true)
	def.StartBrightnessPercent = 80
	def.TargetBrightnessPercent = 30

	assert.Equal(t, 80, def.EffectiveTarget())
}

func TestEffectiveTarget_UnchangedWhenTargetIsHigher(t *testing.T) {
	def := NewDefinition(uuid.New(), "wake", true)
	def.StartBrightnessPercent = 20
	def.TargetBrightnessPercent = 100

	assert.Equal(t, 100, def.EffectiveTarget())
}
