package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gwillem/cobot/pkg/robot"
)

type MoveCommand struct {
	Speed  int  `short:"s" long:"speed" default:"5" description:"Speed 1 (slowest) to 10"`
	Smooth bool `long:"smooth" description:"Ease out over the second half of the travel"`
	Args   struct {
		Joint string `positional-arg-name:"joint" required:"yes"`
		Angle int    `positional-arg-name:"angle" required:"yes"`
	} `positional-args:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	s, err := openSession("")
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := robot.JointName(c.Args.Joint)
	move := s.ctrl.Move
	if c.Smooth {
		move = s.ctrl.MoveSmooth
	}
	if err := move(ctx, name, c.Args.Angle, c.Speed); err != nil {
		return err
	}
	since := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-s.ctrl.States():
			if st.Timestamp.Before(since) {
				continue
			}
			for _, j := range st.Joints {
				if j.Name == name && !j.Moving {
					fmt.Printf("%s at %d°\n", name, j.Angle)
					return nil
				}
			}
		}
	}
}
