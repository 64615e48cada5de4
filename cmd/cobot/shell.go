package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell/v2"

	"github.com/gwillem/cobot/pkg/robot"
)

type ShellCommand struct{}

const shellTimeout = 2 * time.Second

func (c *ShellCommand) Execute(args []string) error {
	s, err := openSession("cobot.log")
	if err != nil {
		return err
	}
	defer s.Close()

	shell := ishell.New()
	shell.Println("cobot shell, type help for commands")

	jointNames := func([]string) []string {
		names := make([]string, 0, len(s.cfg.Joints))
		for _, jc := range s.cfg.Joints {
			names = append(names, string(jc.Name))
		}
		return names
	}

	// run executes a controller call with the shell timeout and reports
	// its error.
	run := func(ctx *ishell.Context, fn func(context.Context) error) {
		cctx, cancel := context.WithTimeout(context.Background(), shellTimeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			ctx.Err(err)
		}
	}

	ints := func(ctx *ishell.Context, n int) ([]int, bool) {
		if len(ctx.Args) < n+1 {
			ctx.Err(fmt.Errorf("expected %d arguments", n+1))
			return nil, false
		}
		out := make([]int, n)
		for i := range out {
			v, err := strconv.Atoi(ctx.Args[i+1])
			if err != nil {
				ctx.Err(err)
				return nil, false
			}
			out[i] = v
		}
		return out, true
	}

	shell.AddCmd(&ishell.Cmd{
		Name:      "write",
		Help:      "set a joint at once: write <joint> <angle>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			v, ok := ints(ctx, 1)
			if !ok {
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.Write(cc, robot.JointName(ctx.Args[0]), v[0])
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "move",
		Help:      "constant speed move: move <joint> <angle> <speed 1-10>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			v, ok := ints(ctx, 2)
			if !ok {
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.Move(cc, robot.JointName(ctx.Args[0]), v[0], v[1])
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "smooth",
		Help:      "eased move: smooth <joint> <angle> <speed 1-10>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			v, ok := ints(ctx, 2)
			if !ok {
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.MoveSmooth(cc, robot.JointName(ctx.Args[0]), v[0], v[1])
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "jog",
		Help:      "nudge a joint: jog <joint> <degrees>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			v, ok := ints(ctx, 1)
			if !ok {
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.Jog(cc, robot.JointName(ctx.Args[0]), v[0])
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "detach",
		Help:      "release a joint and its mirror: detach <joint>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			if len(ctx.Args) != 1 {
				ctx.Err(fmt.Errorf("expected a joint"))
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.Detach(cc, robot.JointName(ctx.Args[0]))
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "attach",
		Help: "drive every joint to its tracked angle",
		Func: func(ctx *ishell.Context) {
			run(ctx, s.ctrl.Attach)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "log",
		Help:      "diagnostic lines: log <joint> <periodic 0|1> <in-move 0|1>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			v, ok := ints(ctx, 2)
			if !ok {
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.SetLog(cc, robot.JointName(ctx.Args[0]), v[0] != 0, v[1] != 0)
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "calibrate",
		Help:      "start calibrating a joint: calibrate <joint>",
		Completer: jointNames,
		Func: func(ctx *ishell.Context) {
			if len(ctx.Args) != 1 {
				ctx.Err(fmt.Errorf("expected a joint"))
				return
			}
			run(ctx, func(cc context.Context) error {
				return s.ctrl.Calibrate(cc, robot.JointName(ctx.Args[0]))
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "cancel",
		Help: "abort the running calibration",
		Func: func(ctx *ishell.Context) {
			run(ctx, s.ctrl.CancelCalibration)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "print the joints",
		Func: func(ctx *ishell.Context) {
			st := <-s.ctrl.States()
			if st.Calibrating != "" {
				ctx.Printf("calibrating %s: point %d/%d, %s\n", st.Calibrating, st.Progress.Point+1, st.Progress.Total, st.Progress.Phase)
			}
			for _, j := range st.Joints {
				ctx.Printf("%-16s %s\n", j.Name, formatJoint(j.Angle, j.Target, j.Moving, j.Mirror, j.HasFeedback, j.Feedback, j.FeedbackAngle))
			}
		},
	})

	go func() {
		for msg := range s.ctrl.Logs() {
			shell.Println(msg)
		}
	}()

	shell.Run()
	shell.Close()
	return nil
}

func formatJoint(angle, target int, moving, mirror, hasFeedback bool, raw, fbAngle int) string {
	out := fmt.Sprintf("%3d°", angle)
	if moving {
		out += fmt.Sprintf(" -> %3d°", target)
	}
	if mirror {
		out += " (mirror)"
	}
	if hasFeedback {
		out += fmt.Sprintf("  raw %4d ≈ %3d°", raw, fbAngle)
	} else if !mirror {
		out += "  no feedback"
	}
	return out
}
