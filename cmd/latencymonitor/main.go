package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/samlucas383/IoTDataX/internal/common"
	"github.com/samlucas383/IoTDataX/internal/common/app"
	"github.com/samlucas383/IoTDataX/internal/configuration"
	"github.com/samlucas383/IoTDataX/internal/latency"
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

	var config configuration.LatencyMonitorConfig
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)
	common.LoadConfig(&config, "./config/latencymonitor", userSpecifiedConfigs)

	if config.MetricsPort > 0 {
		shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
		defer shutdownMetricServer()
	}

	monitor, err := latency.NewMonitor(&config)
	if err != nil {
		log.WithError(err).Fatal("Error creating latency monitor")
	}
	if err := monitor.Run(app.CreateContextWithShutdown()); err != nil {
		log.WithError(err).Fatal("Error running latency monitor")
	}
}
