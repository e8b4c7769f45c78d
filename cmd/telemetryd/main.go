package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/samlucas383/IoTDataX/internal/common"
	"github.com/samlucas383/IoTDataX/internal/configuration"
	"github.com/samlucas383/IoTDataX/internal/telemetryd"
)

const CustomConfigLocation = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.TelemetrydConfig
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/telemetryd", userSpecifiedConfigs)

	telemetryd.Run(&config)
}
