package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/gazepoint/internal/config"
	"github.com/teslashibe/gazepoint/internal/log"
	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/cursor"
	"github.com/teslashibe/gazepoint/pkg/dwell"
	"github.com/teslashibe/gazepoint/pkg/pointer"
	"github.com/teslashibe/gazepoint/pkg/sensor"
	"github.com/teslashibe/gazepoint/pkg/store"
	"github.com/teslashibe/gazepoint/pkg/web"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pointer loop and the web API",
		Long: `Run loads the saved calibration, starts the configured sensor and
drives the cursor and dwell selection. Without a saved calibration the
cursor stays at the screen center until one is committed through the API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(ctx context.Context) error {
	cfg := a.cfg

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	model := a.loadModel(ctx, st)
	var proj cursor.Projector = pointer.Uncalibrated{Screen: cfg.Screen}
	if model != nil {
		proj = model
	}

	ingest := sensor.NewSlot()
	src, _, runSource := a.buildSource(ingest)
	targets := pointer.NewTargetList()

	var server *web.Server
	sinks := pointer.MultiSink{pointer.LogSink{Logger: log.Named("activations")}}
	if cfg.Activations.Topic != "" {
		client, err := connectMQTT(cfg.ActivationBroker(), cfg.Activations.ClientID)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		sinks = append(sinks, pointer.NewMQTTSink(client, cfg.Activations.Topic))
		log.Info("publishing activations", "topic", cfg.Activations.Topic)
	}
	if cfg.Web.Enabled {
		sinks = append(sinks, pointer.SinkFunc(func(act dwell.Activation) error {
			return server.Publish(act)
		}))
	}

	runner := pointer.NewRunner(proj, cfg.Screen, src, targets, sinks, cfg.Pointer, log.Named("pointer"))

	if cfg.Web.Enabled {
		server = web.NewServer(web.Options{
			Port:       cfg.Web.Port,
			Screen:     cfg.Screen,
			Store:      st,
			Targets:    targets,
			Ingest:     ingest,
			Pointer:    runner,
			CursorRate: cfg.Web.CursorRate,
			Logger:     log.Named("web"),
		})
		if model != nil {
			server.SetModel(model)
		}

		// Ingested samples already reach the session through the API.
		forward := cfg.Sensor.Source != config.SourceIngest
		runner.OnTick(func(res pointer.TickResult) {
			if forward && res.Fresh {
				server.FeedSample(res.Sample)
			}
			server.PublishTick(res)
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	if runSource != nil {
		g.Go(func() error { return runSource(gctx) })
	}
	g.Go(func() error { return runner.Run(gctx) })
	if server != nil {
		g.Go(func() error { return server.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gazepoint failed", "error", err)
		return err
	}
	log.Info("gazepoint stopped")
	return err
}

// loadModel returns the model for the saved calibration, or nil when
// there is none or it cannot be used.
func (a *app) loadModel(ctx context.Context, st store.Store) *calibration.Model {
	set, err := st.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("no saved calibration, cursor held at center until calibrated")
		return nil
	}
	if err != nil {
		log.Warn("saved calibration unreadable", "error", err)
		return nil
	}
	model, err := calibration.NewModel(set, a.cfg.Screen)
	if err != nil {
		log.Warn("saved calibration unusable", "error", err)
		return nil
	}
	log.Info("calibration loaded", "model", model.String())
	return model
}
