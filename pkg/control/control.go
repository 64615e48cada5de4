// Package control runs the arm: a single goroutine ticks every actuator at a
// fixed rate and executes commands submitted from other goroutines.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/robot"
	"github.com/gwillem/cobot/pkg/servo"
)

var (
	ErrRunning     = errors.New("already running")
	ErrRejected    = errors.New("command rejected")
	ErrCalibrating = errors.New("calibration in progress")
)

// JointState is a snapshot of one actuator.
type JointState struct {
	Name          robot.JointName
	Angle         int
	Target        int
	Moving        bool
	Mirror        bool
	HasFeedback   bool
	Feedback      int // filtered raw reading
	FeedbackAngle int
	Calibrated    bool
}

// State represents the arm after a control step.
type State struct {
	Joints      []JointState
	Calibrating robot.JointName // empty when idle
	Progress    servo.CalibrationProgress
	Timestamp   time.Time
}

// Config holds configuration for the controller.
type Config struct {
	Hz     int
	Clock  clockwork.Clock
	Store  *robot.Store // receives finished calibrations, optional
	Logger *zap.Logger
}

type command struct {
	fn    func(*servo.Group) error
	reply chan error
}

// Controller owns the servo group of an arm.
type Controller struct {
	arm    *robot.Arm
	group  *servo.Group
	hz     int
	clock  clockwork.Clock
	store  *robot.Store
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cmdCh   chan command
	stateCh chan State
	logCh   chan string

	// owned by the loop
	calibrating int
}

// NewController creates a controller for arm. Run starts it.
func NewController(arm *robot.Arm, cfg Config) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = 200
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		arm:         arm,
		group:       arm.Group(),
		hz:          cfg.Hz,
		clock:       cfg.Clock,
		store:       cfg.Store,
		logger:      cfg.Logger,
		cmdCh:       make(chan command),
		stateCh:     make(chan State, 1),
		logCh:       make(chan string, 10),
		calibrating: -1,
	}
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)

	msg := fmt.Sprintf("[%s] %s", c.clock.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Run drives the arm until ctx is done. It attaches every joint first.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.mu.Unlock()

	c.group.Attach()
	c.log("Control loop started at %d Hz", c.hz)

	ticker := c.clock.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case cmd := <-c.cmdCh:
			cmd.reply <- cmd.fn(c.group)
		case <-ticker.Chan():
			c.step(c.clock.Now())
		}
	}
}

func (c *Controller) step(now time.Time) {
	if c.calibrating >= 0 {
		c.group.TickJoint(c.calibrating, now)
		c.checkCalibration()
	} else {
		c.group.Tick(now)
	}
	c.sendState(c.snapshot(now))
}

func (c *Controller) checkCalibration() {
	i := c.calibrating
	act, _ := c.group.Actuator(i)
	if act.Calibrating() {
		return
	}
	c.calibrating = -1

	name := c.arm.Name(i)
	if !act.Calibrated() {
		return
	}
	c.log("Calibrated %s: %v", name, act.CalibrationFeedback())
	if c.store == nil {
		return
	}
	if err := c.arm.SaveCalibration(c.store, name); err != nil {
		c.log("Warning: failed to save calibration of %s: %v", name, err)
	}
}

func (c *Controller) snapshot(now time.Time) State {
	s := State{
		Joints:    make([]JointState, c.group.Len()),
		Timestamp: now,
	}
	for i, act := range c.group.Actuators() {
		js := JointState{
			Name:       c.arm.Name(i),
			Angle:      act.Angle(),
			Target:     act.Target(),
			Moving:     act.Moving(),
			Mirror:     act.IsMirror(),
			Calibrated: act.Calibrated(),
		}
		js.Feedback, js.HasFeedback = act.Feedback()
		js.FeedbackAngle, _ = act.AngleFromFeedback()
		s.Joints[i] = js
	}
	if c.calibrating >= 0 {
		act, _ := c.group.Actuator(c.calibrating)
		s.Calibrating = c.arm.Name(c.calibrating)
		s.Progress = act.Progress()
	}
	return s
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.calibrating >= 0 {
		c.group.CancelCalibration(c.calibrating)
		c.log("Calibration of %s cancelled", c.arm.Name(c.calibrating))
		c.calibrating = -1
	}
	c.log("Control loop stopped")
}

// Do runs fn on the control goroutine and returns its error. It blocks
// until Run picks the command up or ctx is done.
func (c *Controller) Do(ctx context.Context, fn func(*servo.Group) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// joint runs a motion command on one joint. Motion is refused while a
// calibration runs.
func (c *Controller) joint(ctx context.Context, name robot.JointName, fn func(g *servo.Group, i int) bool) error {
	i, ok := c.arm.Index(name)
	if !ok {
		return fmt.Errorf("%w: %s", servo.ErrUnknownJoint, name)
	}
	return c.Do(ctx, func(g *servo.Group) error {
		if c.calibrating >= 0 {
			return ErrCalibrating
		}
		if !fn(g, i) {
			return fmt.Errorf("%w: %s", ErrRejected, name)
		}
		return nil
	})
}

// Write sets a joint immediately.
func (c *Controller) Write(ctx context.Context, name robot.JointName, angle int) error {
	return c.joint(ctx, name, func(g *servo.Group, i int) bool { return g.Write(i, angle) })
}

// Jog nudges a joint by delta degrees.
func (c *Controller) Jog(ctx context.Context, name robot.JointName, delta int) error {
	return c.joint(ctx, name, func(g *servo.Group, i int) bool { return g.Jog(i, delta) })
}

// Move starts a constant-speed move.
func (c *Controller) Move(ctx context.Context, name robot.JointName, target, speed int) error {
	return c.joint(ctx, name, func(g *servo.Group, i int) bool { return g.Move(i, target, speed) })
}

// MoveSmooth starts an eased move.
func (c *Controller) MoveSmooth(ctx context.Context, name robot.JointName, target, speed int) error {
	return c.joint(ctx, name, func(g *servo.Group, i int) bool { return g.MoveSmooth(i, target, speed) })
}

// Detach releases a joint and its mirror.
func (c *Controller) Detach(ctx context.Context, name robot.JointName) error {
	return c.joint(ctx, name, func(g *servo.Group, i int) bool {
		g.Detach(i)
		return true
	})
}

// Attach drives every joint to its tracked angle.
func (c *Controller) Attach(ctx context.Context) error {
	return c.Do(ctx, func(g *servo.Group) error {
		if c.calibrating >= 0 {
			return ErrCalibrating
		}
		g.Attach()
		return nil
	})
}

// SetLog toggles the periodic and per-step diagnostic lines of a joint.
func (c *Controller) SetLog(ctx context.Context, name robot.JointName, periodic, inMove bool) error {
	i, ok := c.arm.Index(name)
	if !ok {
		return fmt.Errorf("%w: %s", servo.ErrUnknownJoint, name)
	}
	return c.Do(ctx, func(g *servo.Group) error {
		act, _ := g.Actuator(i)
		act.SetLog(periodic)
		act.SetLogInMove(inMove)
		return nil
	})
}

// Calibrate starts calibrating a joint and returns once it has begun. The
// state published before it returns already names the joint. While it runs
// only that joint is ticked and motion commands fail with ErrCalibrating.
func (c *Controller) Calibrate(ctx context.Context, name robot.JointName) error {
	i, ok := c.arm.Index(name)
	if !ok {
		return fmt.Errorf("%w: %s", servo.ErrUnknownJoint, name)
	}
	return c.Do(ctx, func(g *servo.Group) error {
		if c.calibrating >= 0 {
			return ErrCalibrating
		}
		if !g.StartCalibration(i) {
			return fmt.Errorf("%w: %s", servo.ErrNotCalibratable, name)
		}
		c.calibrating = i
		c.log("Calibrating %s", name)
		c.sendState(c.snapshot(c.clock.Now()))
		return nil
	})
}

// CancelCalibration aborts a running calibration. The previous table is
// kept.
func (c *Controller) CancelCalibration(ctx context.Context) error {
	return c.Do(ctx, func(g *servo.Group) error {
		if c.calibrating < 0 {
			return nil
		}
		g.CancelCalibration(c.calibrating)
		c.log("Calibration of %s cancelled", c.arm.Name(c.calibrating))
		c.calibrating = -1
		c.sendState(c.snapshot(c.clock.Now()))
		return nil
	})
}
