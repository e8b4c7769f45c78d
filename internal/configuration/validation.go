package configuration

import "github.com/go-playground/validator/v10"

func (c TelemetrydConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func (c DevicesimConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func (c LatencyMonitorConfig) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}
