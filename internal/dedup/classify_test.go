package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

func TestClassifyEveryKind(t *testing.T) {
	want := map[sensor.Kind]Class{
		sensor.KindCurrent:         ClassCounter,
		sensor.KindAutopilotRemote: ClassCounter,
		sensor.KindPir:             ClassConfirm,
		sensor.KindEnvironment:     ClassCoalesce,
		sensor.KindTemperature:     ClassCoalesce,
		sensor.KindTankLevel:       ClassCoalesce,
		sensor.KindVoltage:         ClassCoalesce,
	}
	assert.Len(t, want, len(sensor.Kinds))
	for _, k := range sensor.Kinds {
		assert.Equal(t, want[k], Classify(k), k.String())
	}
}

func TestKeyFor(t *testing.T) {
	ev := temperature("T101", 20, -50)
	assert.Equal(t, Key{Tag: "t", Instance: "T101"}, KeyFor(ClassCoalesce, ev))
	assert.Equal(t, "tT101", KeyFor(ClassCoalesce, ev).String())

	c := current("C401", 1, -50)
	assert.Equal(t, Key{Instance: "C401"}, KeyFor(ClassCounter, c))
	assert.Equal(t, "C401", KeyFor(ClassCounter, c).String())
}
