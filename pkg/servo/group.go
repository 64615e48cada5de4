package servo

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Group owns the actuators of an arm, addressed by index, and the
// master/mirror links between them. Commands go through the group so that
// every angle a master commits reaches its mirror inverted.
type Group struct {
	actuators []*Actuator
	mirrors   map[int]int // master -> mirror
	masters   map[int]int // mirror -> master
}

// NewGroup creates a group without links.
func NewGroup(actuators ...*Actuator) *Group {
	return &Group{
		actuators: actuators,
		mirrors:   make(map[int]int),
		masters:   make(map[int]int),
	}
}

// Link makes mirror follow master. A master has at most one mirror, a
// mirror has exactly one master and neither side may be part of another
// link. The mirror flag is permanent.
func (g *Group) Link(master, mirror int) error {
	if !g.valid(master) || !g.valid(mirror) {
		return fmt.Errorf("%w: link %d -> %d", ErrUnknownJoint, master, mirror)
	}
	if master == mirror {
		return fmt.Errorf("%w: %d", ErrSelfMirror, master)
	}
	if _, ok := g.masters[master]; ok {
		return fmt.Errorf("%w: %d is a mirror", ErrMirrorChain, master)
	}
	if _, ok := g.mirrors[mirror]; ok {
		return fmt.Errorf("%w: %d has a mirror", ErrMirrorChain, mirror)
	}
	if _, ok := g.mirrors[master]; ok {
		return fmt.Errorf("%w: %d already has a mirror", ErrMirrorTaken, master)
	}
	if _, ok := g.masters[mirror]; ok {
		return fmt.Errorf("%w: %d already follows a master", ErrMirrorTaken, mirror)
	}

	g.mirrors[master] = mirror
	g.masters[mirror] = master
	g.actuators[mirror].isMirror = true
	g.actuators[master].hasMirror = true
	return nil
}

func (g *Group) valid(i int) bool { return i >= 0 && i < len(g.actuators) }

// Len returns the number of actuators.
func (g *Group) Len() int { return len(g.actuators) }

// Actuator returns the actuator at index i.
func (g *Group) Actuator(i int) (*Actuator, bool) {
	if !g.valid(i) {
		return nil, false
	}
	return g.actuators[i], true
}

// Actuators returns all actuators in index order.
func (g *Group) Actuators() []*Actuator {
	out := make([]*Actuator, len(g.actuators))
	copy(out, g.actuators)
	return out
}

// MirrorOf returns the mirror linked to master.
func (g *Group) MirrorOf(master int) (int, bool) {
	m, ok := g.mirrors[master]
	return m, ok
}

// MasterOf returns the master a mirror follows.
func (g *Group) MasterOf(mirror int) (int, bool) {
	m, ok := g.masters[mirror]
	return m, ok
}

// propagate copies the committed angle of master i to its mirror.
func (g *Group) propagate(i int) {
	m, ok := g.mirrors[i]
	if !ok {
		return
	}
	g.actuators[m].followMaster(MirrorAngle(g.actuators[i].current))
}

// Write sets joint i immediately. Mirrors reject it.
func (g *Group) Write(i, angle int) bool {
	if !g.valid(i) || !g.actuators[i].Write(angle) {
		return false
	}
	g.propagate(i)
	return true
}

// Jog nudges joint i by delta degrees.
func (g *Group) Jog(i, delta int) bool {
	if !g.valid(i) {
		return false
	}
	return g.Write(i, g.actuators[i].current+delta)
}

// Move starts a constant-speed move on joint i.
func (g *Group) Move(i, target, speed int) bool {
	return g.valid(i) && g.actuators[i].Move(target, speed)
}

// MoveSmooth starts an eased move on joint i.
func (g *Group) MoveSmooth(i, target, speed int) bool {
	return g.valid(i) && g.actuators[i].MoveSmooth(target, speed)
}

// Attach drives every master and plain joint to its current angle; mirrors
// follow.
func (g *Group) Attach() {
	for i := range g.actuators {
		g.Write(i, g.actuators[i].current)
	}
}

// Detach releases joint i and its mirror.
func (g *Group) Detach(i int) {
	if !g.valid(i) {
		return
	}
	g.actuators[i].Detach()
	if m, ok := g.mirrors[i]; ok {
		g.actuators[m].Detach()
	}
}

// DetachAll releases every joint.
func (g *Group) DetachAll() {
	for _, a := range g.actuators {
		a.Detach()
	}
}

// Tick runs one scheduler pass over every actuator in index order.
func (g *Group) Tick(now time.Time) {
	for i := range g.actuators {
		g.TickJoint(i, now)
	}
}

// TickJoint runs one scheduler pass over joint i only.
func (g *Group) TickJoint(i int, now time.Time) bool {
	if !g.valid(i) {
		return false
	}
	if !g.actuators[i].Tick(now) {
		return false
	}
	g.propagate(i)
	return true
}

// Moving reports whether any joint is moving.
func (g *Group) Moving() bool {
	for _, a := range g.actuators {
		if a.moving {
			return true
		}
	}
	return false
}

// Calibrating returns the index of the calibrating joint, if any.
func (g *Group) Calibrating() (int, bool) {
	for i, a := range g.actuators {
		if a.run.active() {
			return i, true
		}
	}
	return 0, false
}

// StartCalibration begins calibrating joint i. Only one joint of a group
// calibrates at a time.
func (g *Group) StartCalibration(i int) bool {
	if !g.valid(i) {
		return false
	}
	if _, busy := g.Calibrating(); busy {
		return false
	}
	return g.actuators[i].StartCalibration()
}

// CancelCalibration aborts a calibration on joint i.
func (g *Group) CancelCalibration(i int) {
	if g.valid(i) {
		g.actuators[i].CancelCalibration()
	}
}

// Calibrate runs a calibration of joint i to completion, ticking only that
// joint every period of clock. The caller must not tick the group
// concurrently. Cancelling ctx aborts the calibration.
func (g *Group) Calibrate(ctx context.Context, i int, clock clockwork.Clock, period time.Duration) error {
	if !g.StartCalibration(i) {
		return fmt.Errorf("%w: %d", ErrNotCalibratable, i)
	}

	ticker := clock.NewTicker(period)
	defer ticker.Stop()

	a := g.actuators[i]
	for {
		g.TickJoint(i, clock.Now())
		if !a.Calibrating() {
			return nil
		}

		select {
		case <-ctx.Done():
			a.CancelCalibration()
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}
