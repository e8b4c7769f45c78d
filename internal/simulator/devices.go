package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Device produces one telemetry payload per tick. Implementations keep
// per-device state (battery level, boot counters) so consecutive payloads
// look like a real device, not white noise.
type Device interface {
	ID() string
	Telemetry(now time.Time) map[string]any
}

// NewDevice creates a device of the given profile with a fresh random id.
func NewDevice(profile string) (Device, error) {
	id := fmt.Sprintf("%s-%s", profile, uuid.NewString()[:8])
	switch profile {
	case "esp32":
		return &esp32Device{id: id, batteryVoltage: 3.7}, nil
	case "arduino":
		return &arduinoDevice{id: id}, nil
	case "pico":
		return &picoDevice{id: id}, nil
	case "stm32":
		return &stm32Device{id: id}, nil
	case "generic":
		return &genericDevice{id: id}, nil
	default:
		return nil, errors.Errorf("unknown device profile %q", profile)
	}
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}

func uniform(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

// esp32Device mimics an ESP32: WiFi RSSI, environmental sensors, a slowly
// draining battery and occasional deep-sleep reboots.
type esp32Device struct {
	id             string
	batteryVoltage float64
	bootCount      int
}

func (d *esp32Device) ID() string { return d.id }

func (d *esp32Device) Telemetry(now time.Time) map[string]any {
	d.batteryVoltage -= uniform(0.001, 0.005)
	if d.batteryVoltage < 3.0 {
		d.batteryVoltage = 3.0
	}
	if rand.Float64() < 0.05 {
		// deep sleep cycle: device "recharges" a little and reboots
		d.bootCount++
		d.batteryVoltage += 0.1
		if d.batteryVoltage > 4.2 {
			d.batteryVoltage = 4.2
		}
	}
	return map[string]any{
		"device_type": "ESP32",
		"device_id":   d.id,
		"ts":          now.UnixMilli(),
		"sensors": map[string]any{
			"temperature": round2(uniform(18, 28)),
			"humidity":    round2(uniform(35, 65)),
			"pressure":    round2(uniform(980, 1020)),
		},
		"system": map[string]any{
			"rssi":            -90 + rand.Intn(61),
			"battery_voltage": round2(d.batteryVoltage),
			"heap_free":       50000 + rand.Intn(100001),
			"boot_count":      d.bootCount,
		},
	}
}

// arduinoDevice mimics an Arduino Nano 33 IoT with a 9-axis IMU.
type arduinoDevice struct {
	id        string
	loopCount int
}

func (d *arduinoDevice) ID() string { return d.id }

func (d *arduinoDevice) Telemetry(now time.Time) map[string]any {
	d.loopCount++
	return map[string]any{
		"device_type": "Arduino",
		"device_id":   d.id,
		"ts":          now.UnixMilli(),
		"sensors": map[string]any{
			"accel_x": round2(uniform(-2, 2)),
			"accel_y": round2(uniform(-2, 2)),
			"accel_z": round2(uniform(8.8, 10.8)),
			"gyro_x":  round2(uniform(-250, 250)),
			"gyro_y":  round2(uniform(-250, 250)),
			"gyro_z":  round2(uniform(-250, 250)),
		},
		"system": map[string]any{
			"loop_count": d.loopCount,
			"ram_free":   1024 + rand.Intn(31745),
		},
	}
}

// picoDevice mimics a Raspberry Pi Pico W with GPIO and motion sensing.
type picoDevice struct {
	id string
}

func (d *picoDevice) ID() string { return d.id }

func (d *picoDevice) Telemetry(now time.Time) map[string]any {
	gpio := make([]int, 4)
	for i := range gpio {
		gpio[i] = rand.Intn(2)
	}
	return map[string]any{
		"device_type": "Pico",
		"device_id":   d.id,
		"ts":          now.UnixMilli(),
		"sensors": map[string]any{
			"onboard_temp":    round2(uniform(20, 35)),
			"motion_detected": rand.Float64() < 0.2,
			"gpio_states":     gpio,
		},
		"system": map[string]any{
			"core_freq_mhz": 133,
			"usb_connected": true,
		},
	}
}

// stm32Device mimics an industrial STM32 node with high-precision sensors.
type stm32Device struct {
	id string
}

func (d *stm32Device) ID() string { return d.id }

func (d *stm32Device) Telemetry(now time.Time) map[string]any {
	return map[string]any{
		"device_type": "STM32",
		"device_id":   d.id,
		"ts":          now.UnixMilli(),
		"sensors": map[string]any{
			"temperature":     round2(uniform(-10, 60)),
			"pressure":        round2(uniform(900, 1100)),
			"vibration_rms":   round2(uniform(0, 5)),
			"supply_voltage":  round2(uniform(23.5, 24.5)),
			"current_draw_ma": round2(uniform(80, 220)),
		},
		"system": map[string]any{
			"status_flags": rand.Intn(16),
			"error_count":  rand.Intn(3),
		},
	}
}

// genericDevice is the baseline simulator: a few environmental readings.
type genericDevice struct {
	id string
}

func (d *genericDevice) ID() string { return d.id }

func (d *genericDevice) Telemetry(now time.Time) map[string]any {
	return map[string]any{
		"device_id": d.id,
		"ts":        now.UnixMilli(),
		"sensors": map[string]any{
			"temperature": round2(uniform(20, 30)),
			"humidity":    round2(uniform(40, 55)),
			"voltage":     round2(uniform(3.1, 3.7)),
		},
	}
}
