package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/control"
	"github.com/gwillem/cobot/pkg/robot"
)

// session is an opened arm with its controller running in the background.
type session struct {
	cfg    *robot.Config
	arm    *robot.Arm
	store  *robot.Store
	ctrl   *control.Controller
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan error
}

func newLogger(defaultFile string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	path := opts.LogFile
	if path == "" {
		path = defaultFile
	}
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	return cfg.Build()
}

// openSession loads the configuration, opens the arm and its stored
// calibration and starts the control loop. logFile redirects logging away
// from a terminal UI.
func openSession(logFile string) (*session, error) {
	logger, err := newLogger(logFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}

	store, err := robot.OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	arm, err := robot.OpenArm(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	n, err := arm.LoadCalibration(store)
	if err != nil {
		logger.Warn("load calibration", zap.Error(err))
	}
	logger.Info("calibration loaded", zap.Int("joints", n))

	ctrl := control.NewController(arm, control.Config{
		Hz:     cfg.Hz,
		Store:  store,
		Logger: logger.Named("control"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cfg:    cfg,
		arm:    arm,
		store:  store,
		ctrl:   ctrl,
		logger: logger,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { s.done <- ctrl.Run(ctx) }()
	return s, nil
}

// Close stops the control loop and releases the arm.
func (s *session) Close() error {
	s.cancel()
	err := <-s.done
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	err = multierr.Combine(err, s.arm.Close(), s.store.Close())
	s.logger.Sync()
	return err
}
