package dedup

import (
	"sync"
	"time"

	"github.com/sweeney/bt-sensor-relay/internal/sensor"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type collector struct {
	mu     sync.Mutex
	events []sensor.Event
}

func (c *collector) emit(e sensor.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) all() []sensor.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sensor.Event(nil), c.events...)
}

func current(instance string, counter uint16, rssi int) *sensor.Current {
	return &sensor.Current{
		Common:         sensor.Common{Tag: "c", Instance: instance, RSSI: rssi},
		MessageCounter: counter,
	}
}

func remote(instance string, counter uint16) *sensor.AutopilotRemote {
	return &sensor.AutopilotRemote{
		Common:         sensor.Common{Tag: "a", Instance: instance},
		MessageCounter: counter,
	}
}

func pir(instance string, id uint32, rssi int) *sensor.Pir {
	return &sensor.Pir{
		Common:         sensor.Common{Tag: "k", Instance: instance, RSSI: rssi},
		MotionDetected: true,
		MessageID:      id,
	}
}

func temperature(instance string, value float64, rssi int) *sensor.Temperature {
	return &sensor.Temperature{
		Common:      sensor.Common{Tag: "t", Instance: instance, RSSI: rssi},
		Temperature: value,
	}
}

func voltage(instance string, rssi int) *sensor.Voltage {
	return &sensor.Voltage{Common: sensor.Common{Tag: "v", Instance: instance, RSSI: rssi}}
}

func counters(events []sensor.Event) []uint16 {
	var out []uint16
	for _, e := range events {
		c, _ := messageCounter(e)
		out = append(out, c)
	}
	return out
}
