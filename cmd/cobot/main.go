package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"cobot.yaml" description:"Configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug output"`
	LogFile string `long:"log-file" description:"Write logs to this file instead of stderr"`

	Monitor   MonitorCommand   `command:"monitor" description:"Run the control loop and chart the joints"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Calibrate joint feedback and store the tables"`
	Shell     ShellCommand     `command:"shell" description:"Interactive joint console"`
	Move      MoveCommand      `command:"move" description:"Move one joint and wait until it stops"`
	Scan      ScanCommand      `command:"scan" description:"List serial ports and Feetech servos on them"`
	Info      InfoCommand      `command:"info" description:"Show the configured joints and their calibration"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "cobot - servo arm controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
