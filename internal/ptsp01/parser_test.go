package ptsp01

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTelemetry(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		attr  Attribute
		sock  int
		value float64
		on    bool
	}{
		{"switch on", "Device.SmartPlug.Socket.1.Switch(bool)=1", AttrSwitch, 1, 0, true},
		{"switch off", "Device.SmartPlug.Socket.3.Switch(bool)=0", AttrSwitch, 3, 0, false},
		{"switch other", "Device.SmartPlug.Socket.3.Switch(bool)=true", AttrSwitch, 3, 0, false},
		{"voltage", "Device.SmartPlug.Socket.2.Voltage(float)=230.1", AttrVoltage, 2, 230.1, false},
		{"whitespace", "  Device.SmartPlug.Socket.2.Current (float) = 0.25\r", AttrCurrent, 2, 0.25, false},
		{"power", "Device.SmartPlug.Socket.1.Power(float)=12", AttrPower, 1, 12, false},
		{"after prompt", PromptMarker + "Device.SmartPlug.Socket.2.Voltage(float)=230.1", AttrVoltage, 2, 230.1, false},
		{"after prompts", PromptMarker + PromptMarker + "Device.SmartPlug.Socket.3.Switch(bool)=1", AttrSwitch, 3, 0, true},
		{"energy", "Device.SmartPlug.Socket.1.Energy(float)=7.5", AttrEnergy, 1, 7.5, false},
		{"meter", "Device.SmartPlug.Socket.2.EnergyMeter.SingleCount(string)={'peakenergy':5,'valleyenergy':3}", AttrEnergyMeter, 2, 8, false},
		{"meter strings", "Device.SmartPlug.Socket.2.EnergyMeter.SingleCount(string)={'peakenergy':'1.5','valleyenergy':'2', 'x': 1}", AttrEnergyMeter, 2, 3.5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseTelemetry(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.sock, got.Socket)
			assert.Equal(t, tc.attr, got.Attr)
			assert.InDelta(t, tc.value, got.Value, 1e-9)
			assert.Equal(t, tc.on, got.On)
		})
	}
}

func TestParseTelemetryRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"root@(none):/# ",
		"qmibtree -g Device.SmartPlug.Socket.1.Switch",
		"Device.SmartPlug.Socket.1.Switch(bool)",
		"Device.SmartPlug.Socket.x.Power(float)=1",
		"Device.SmartPlug.Socket.4.Power(float)=1",
		"Device.SmartPlug.Socket.0.Power(float)=1",
		"Device.SmartPlug.Socket.1.Power(float)=abc",
		"Device.SmartPlug.Socket.1.Unknown(int)=1",
		"Device.SmartPlug.Socket.1.EnergyMeter.SingleCount(string)={'peakenergy':5}",
		"Device.SmartPlug.Socket.1.EnergyMeter.SingleCount(string)=garbage",
		"Device.SmartPlug.Socket.1",
	} {
		_, ok := ParseTelemetry(line)
		assert.False(t, ok, line)
	}
}

func TestIsTelemetryLine(t *testing.T) {
	assert.True(t, IsTelemetryLine(" Device.SmartPlug.Socket.1.Foo=1"))
	assert.False(t, IsTelemetryLine("Device.SmartPlug.Other"))
	assert.True(t, IsTelemetryLine(PromptMarker+"Device.SmartPlug.Socket.1.Power(float)=abc"))
	assert.False(t, IsTelemetryLine(PromptMarker+"qmibtree -g Device.SmartPlug.Socket.1.Switch"))
	assert.False(t, IsTelemetryLine(PromptMarker))
}
