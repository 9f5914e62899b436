package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/app"
	"github.com/itohio/sensepipe/pkg/config"
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		portFlag     = flag.String("p", "", "Rudder serial port override (e.g. /dev/ttyUSB0)")
		mockFlag     = flag.Bool("mock", false, "Use a simulated rudder sensor instead of the serial port")
		logLevelFlag = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		paramsFlag   = flag.String("params", "", "Parameter file override")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Rudder.Serial.Port = *portFlag
	}
	if *mockFlag {
		cfg.Rudder.Mock = true
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}
	if *paramsFlag != "" {
		cfg.ParamsFile = *paramsFlag
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if a.Wire() == 0 {
		log.Fatal("No pipeline could be activated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"hostname": cfg.Hostname,
		"params":   cfg.ParamsFile,
	}).Info("sensord running")

	if err := a.Run(ctx); err != nil {
		log.Errorf("Stopped with error: %v", err)
		os.Exit(1)
	}
	log.Info("sensord stopped")
}
