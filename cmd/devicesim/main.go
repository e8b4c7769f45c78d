package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/samlucas383/IoTDataX/internal/common"
	"github.com/samlucas383/IoTDataX/internal/common/app"
	"github.com/samlucas383/IoTDataX/internal/configuration"
	"github.com/samlucas383/IoTDataX/internal/simulator"
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

	var config configuration.DevicesimConfig
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/devicesim", userSpecifiedConfigs)

	fleet, err := simulator.NewFleet(&config)
	if err != nil {
		log.WithError(err).Fatal("Error creating simulator fleet")
	}
	if err := fleet.Run(app.CreateContextWithShutdown()); err != nil {
		log.WithError(err).Fatal("Error running simulator fleet")
	}
}
