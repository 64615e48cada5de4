package main

import (
	"fmt"
	"strings"

	"go.bug.st/serial"

	"github.com/gwillem/cobot/pkg/hw"
)

type ScanCommand struct {
	MaxID int  `long:"max-id" default:"8" description:"Highest servo ID to probe"`
	Bus   bool `long:"bus" description:"Probe every port for Feetech servos"`
}

func (c *ScanCommand) Execute(args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		fmt.Println(port)
		if !c.Bus {
			continue
		}

		bus, err := hw.OpenFeetech(hw.FeetechConfig{Port: port, MinID: 1, MaxID: c.MaxID})
		if err != nil {
			fmt.Println(dimStyle.Render("  " + err.Error()))
			continue
		}
		ids := bus.IDs()
		bus.Close()
		if len(ids) == 0 {
			fmt.Println(dimStyle.Render("  no servos"))
			continue
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("  servos %v", ids)))
	}
	return nil
}
