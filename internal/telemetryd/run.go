package telemetryd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/samlucas383/IoTDataX/internal/api"
	"github.com/samlucas383/IoTDataX/internal/common"
	"github.com/samlucas383/IoTDataX/internal/common/app"
	"github.com/samlucas383/IoTDataX/internal/common/database"
	"github.com/samlucas383/IoTDataX/internal/common/health"
	"github.com/samlucas383/IoTDataX/internal/common/mqttutils"
	"github.com/samlucas383/IoTDataX/internal/configuration"
	"github.com/samlucas383/IoTDataX/internal/ingest"
	"github.com/samlucas383/IoTDataX/internal/ingest/metrics"
	"github.com/samlucas383/IoTDataX/internal/telemetrydb"
)

// Run assembles and runs the full telemetry service: MQTT consumer and HTTP
// ingest feeding one pipeline, the REST query layer, metrics and health.
// It blocks until a SIGTERM is received and the queue has been drained.
func Run(config *configuration.TelemetrydConfig) {
	if err := config.Validate(); err != nil {
		panic(errors.WithMessage(err, "Invalid configuration"))
	}

	log.Info("Opening connection pool to postgres")
	db, err := database.OpenPgxPool(context.Background(), config.Postgres)
	if err != nil {
		panic(errors.WithMessage(err, "Error opening connection to postgres"))
	}
	defer db.Close()

	if err := telemetrydb.CreateSchema(context.Background(), db); err != nil {
		panic(errors.WithMessage(err, "Error provisioning telemetry schema"))
	}

	dedup := telemetrydb.NoDedup()
	if len(config.Pipeline.DedupKey) > 0 {
		dedup = telemetrydb.KeyedDedup(config.Pipeline.DedupKey...).
			WithPredicate(telemetrydb.DedupPredicate)
	}
	sink := telemetrydb.NewTelemetryDb(db, dedup, metrics.Get())

	pipeline := ingest.NewPipeline(
		sink,
		config.Pipeline.QueueCapacity,
		config.Pipeline.BatchSize,
		config.Pipeline.BatchTimeout,
	)

	mqttClient, err := mqttutils.NewMqttClient(&config.Mqtt)
	if err != nil {
		panic(errors.WithMessage(err, "Error connecting to MQTT broker"))
	}
	consumer := ingest.NewMQTTConsumer(mqttClient, pipeline, &config.Mqtt)
	if err := consumer.Start(); err != nil {
		panic(errors.WithMessage(err, "Error subscribing to telemetry topic"))
	}

	checker := health.NewMultiChecker(
		health.CheckerFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return db.Ping(ctx)
		}),
		health.CheckerFunc(func() error {
			if !mqttClient.IsConnected() {
				return errors.New("not connected to MQTT broker")
			}
			return nil
		}),
	)

	handlers := api.NewHandlers(pipeline, telemetrydb.NewRepository(db, metrics.Get()))
	router := api.NewRouter(handlers, health.NewHttpHandler(checker))

	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()
	shutdownHttpServer := common.ServeHttp(config.HttpPort, router)
	defer shutdownHttpServer()

	ctx := app.CreateContextWithShutdown()
	go func() {
		// Stop intake as soon as shutdown is requested so the final drain
		// can actually finish.
		<-ctx.Done()
		consumer.Stop()
	}()

	log.Info("Ingestion pipeline set up. Running until shutdown signal received")
	pipeline.Run(ctx)
	log.Info("Shutdown complete")
}
