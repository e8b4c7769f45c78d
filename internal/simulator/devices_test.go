package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevice_UnknownProfile(t *testing.T) {
	_, err := NewDevice("toaster")
	assert.Error(t, err)
}

func TestDeviceProfiles(t *testing.T) {
	now := time.Now()

	tests := map[string]struct {
		wantType   string
		sensorKeys []string
		wantSystem bool
	}{
		"esp32":   {wantType: "ESP32", sensorKeys: []string{"temperature", "humidity", "pressure"}, wantSystem: true},
		"arduino": {wantType: "Arduino", sensorKeys: []string{"accel_x", "gyro_z"}, wantSystem: true},
		"pico":    {wantType: "Pico", sensorKeys: []string{"onboard_temp", "gpio_states"}, wantSystem: true},
		"stm32":   {wantType: "STM32", sensorKeys: []string{"vibration_rms", "supply_voltage"}, wantSystem: true},
		"generic": {sensorKeys: []string{"temperature", "voltage"}},
	}

	for profile, tc := range tests {
		t.Run(profile, func(t *testing.T) {
			device, err := NewDevice(profile)
			require.NoError(t, err)
			assert.Contains(t, device.ID(), profile+"-")

			payload := device.Telemetry(now)
			assert.Equal(t, device.ID(), payload["device_id"])
			assert.Equal(t, now.UnixMilli(), payload["ts"])
			if tc.wantType != "" {
				assert.Equal(t, tc.wantType, payload["device_type"])
			}
			sensors, ok := payload["sensors"].(map[string]any)
			require.True(t, ok)
			for _, key := range tc.sensorKeys {
				assert.Contains(t, sensors, key)
			}
			if tc.wantSystem {
				assert.Contains(t, payload, "system")
			}
		})
	}
}

func TestEsp32BatteryStaysInRange(t *testing.T) {
	device, err := NewDevice("esp32")
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		payload := device.Telemetry(time.Now())
		system := payload["system"].(map[string]any)
		voltage := system["battery_voltage"].(float64)
		assert.GreaterOrEqual(t, voltage, 3.0)
		assert.LessOrEqual(t, voltage, 4.2)
	}
}
