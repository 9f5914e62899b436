// Package app assembles the daemon: one event loop, one parameter store, the
// telemetry publishers and the sensor pipelines built on top of them.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/adc"
	"github.com/itohio/sensepipe/pkg/config"
	"github.com/itohio/sensepipe/pkg/loop"
	"github.com/itohio/sensepipe/pkg/param"
	"github.com/itohio/sensepipe/pkg/pipeline"
	"github.com/itohio/sensepipe/pkg/sensor"
	"github.com/itohio/sensepipe/pkg/sink"
	"github.com/itohio/sensepipe/pkg/transform"
)

const shutdownTimeout = 5 * time.Second

// App is the application context. Everything a pipeline needs is reached
// through it; there is no package level state.
type App struct {
	cfg        *config.Config
	paramsFile string

	loop      *loop.Loop
	store     *param.Store
	registry  *prometheus.Registry
	signalk   *sink.SignalK
	publisher sink.Publisher

	devices   []adc.Device
	pipelines []*pipeline.Pipeline

	openDevice func(config.RudderConfig) adc.Device
}

// New builds the application from cfg with parameters persisted in
// cfg.ParamsFile.
func New(cfg *config.Config) (*App, error) {
	a, err := newApp(cfg, param.NewFileBackend(cfg.ParamsFile))
	if err != nil {
		return nil, err
	}
	a.paramsFile = cfg.ParamsFile
	return a, nil
}

func newApp(cfg *config.Config, backend param.Backend) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	store, err := param.NewStore(backend)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewBuildInfoCollector(),
	)
	prom, err := sink.NewPrometheus(reg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		loop:       loop.New(),
		store:      store,
		registry:   reg,
		openDevice: openDevice,
	}

	pubs := sink.Multi{prom}
	if sk := cfg.Telemetry.SignalK; sk.Enabled {
		a.signalk = sink.NewSignalK(sink.SignalKConfig{
			URL:        sk.URL,
			Token:      sk.Token,
			Source:     cfg.Hostname,
			BufferSize: sk.BufferSize,
		})
		pubs = append(pubs, a.signalk)
	}
	if cfg.Telemetry.Log {
		pubs = append(pubs, sink.NewLogger(log.WithField("component", "telemetry")))
	}
	a.publisher = pubs

	return a, nil
}

func openDevice(rc config.RudderConfig) adc.Device {
	if rc.Mock {
		mc := adc.DefaultMockConfig()
		mc.MaxRaw = rc.ADCMax
		return adc.NewMock(mc)
	}
	return adc.New(rc.Serial.Port, rc.Serial.BaudRate, rc.ADCMax)
}

// Store returns the parameter store.
func (a *App) Store() *param.Store { return a.store }

// Registry returns the metrics registry served on the metrics endpoint.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Pipelines returns the pipelines built by Wire.
func (a *App) Pipelines() []*pipeline.Pipeline { return a.pipelines }

// Wire builds the enabled pipelines and activates every one that is free of
// configuration errors. It returns the number of active pipelines.
func (a *App) Wire() int {
	if a.cfg.Rudder.Enabled {
		a.pipelines = append(a.pipelines, a.rudder())
	}
	if a.cfg.Bilge.Enabled {
		a.pipelines = append(a.pipelines, a.bilge())
	}

	active := 0
	for _, p := range a.pipelines {
		if err := p.Activate(a.loop); err != nil {
			log.WithField("pipeline", p.Name()).Errorf("pipeline disabled: %v", err)
			continue
		}
		active++
	}
	return active
}

// rudder: analog input -> two point calibration -> steering.rudderAngle.
func (a *App) rudder() *pipeline.Pipeline {
	rc := a.cfg.Rudder
	p := pipeline.New("rudder")

	policy, err := sensor.ParseFaultPolicy(rc.FaultPolicy)
	if err != nil {
		p.Fail(err)
		return p
	}

	dev := a.openDevice(rc)
	input, err := sensor.NewProducer[float32](a.store, rc.ConfigPath, rc.ReadDelay, policy,
		sensor.NewAnalogInput(dev, float32(rc.OutputScale), rc.MaxAge))
	if err != nil {
		p.Fail(err)
		return p
	}

	angle, err := transform.NewCalibration(a.store, rc.TransformPath, transform.DefaultCalibration)
	if err != nil {
		p.Fail(err)
		return p
	}

	out, err := sink.NewOutput[float32](rc.OutputPath, rc.SKPath, sink.NewMetadata("rad", "Rudder Angle"), a.publisher)
	if err != nil {
		p.Fail(err)
		return p
	}

	pipeline.Connect[float32](p, pipeline.Connect[float32](p, input, angle), out)
	if p.Err() == nil {
		a.devices = append(a.devices, dev)
	}
	return p
}

// bilge: 1-Wire thermometer -> linear(1, 0) -> aft bilge temperature.
func (a *App) bilge() *pipeline.Pipeline {
	bc := a.cfg.Bilge
	p := pipeline.New("bilge")

	policy, err := sensor.ParseFaultPolicy(bc.FaultPolicy)
	if err != nil {
		p.Fail(err)
		return p
	}

	device := bc.Device
	if device == "" {
		found, err := sensor.DiscoverOneWire(sensor.DefaultW1Root)
		if err != nil || len(found) == 0 {
			p.Fail(errors.Errorf("no 1-Wire thermometer found under %s", sensor.DefaultW1Root))
			return p
		}
		device = found[0]
		log.WithField("device", device).Info("using discovered 1-Wire thermometer")
	}

	input, err := sensor.NewProducer[float64](a.store, bc.ConfigPath, bc.ReadDelay, policy, sensor.NewOneWire(device))
	if err != nil {
		p.Fail(err)
		return p
	}

	linear, err := transform.NewLinear[float64](a.store, bc.LinearPath, 1, 0)
	if err != nil {
		p.Fail(err)
		return p
	}

	out, err := sink.NewOutput[float64](bc.OutputPath, bc.SKPath, sink.NewMetadata("K", "Aft Bilge Temperature"), a.publisher)
	if err != nil {
		p.Fail(err)
		return p
	}

	pipeline.Connect[float64](p, pipeline.Connect[float64](p, input, linear), out)
	return p
}

// Run starts devices, publishers, the metrics endpoint and the parameter
// watcher, then runs the loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	// Persist so the file lists every parameter with its value in force.
	if err := a.store.Save(); err != nil {
		log.Warnf("failed to save parameters: %v", err)
	}

	for _, d := range a.devices {
		if err := d.Connect(); err != nil {
			log.Errorf("failed to connect ADC device: %v", err)
			continue
		}
		defer d.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.signalk != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.signalk.Run(ctx)
		}()
	}

	if addr := a.cfg.Telemetry.Prometheus.Listen; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.metricsHandler()}
		wg.Add(2)
		go func() {
			defer wg.Done()
			log.WithField("addr", addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if a.paramsFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := param.Watch(ctx, a.paramsFile, func(doc param.Document) {
				a.loop.Post(func() { a.applyParams(doc) })
			})
			if err != nil {
				log.Errorf("parameter watcher stopped: %v", err)
			}
		}()
	}

	err := a.loop.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler(a.registry))
	return mux
}

// applyParams runs on the loop.
func (a *App) applyParams(doc param.Document) {
	for _, err := range a.store.Apply(doc) {
		log.Warnf("parameter rejected: %v", err)
	}
}
