package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/cobot/pkg/robot"
	"github.com/gwillem/cobot/pkg/servo"
)

type InfoCommand struct{}

func (c *InfoCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return err
	}
	store, err := robot.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println(headerStyle.Render("cobot info"))
	fmt.Printf("bus %s, feedback %s, %d Hz, store %s\n\n", cfg.Bus.Driver, orNone(cfg.ADC.Driver), cfg.Hz, cfg.Store)

	rows := make([][]string, 0, len(cfg.Joints))
	for _, jc := range cfg.Joints {
		pin := "-"
		if jc.Feedback != servo.NoPin {
			pin = fmt.Sprintf("%d", jc.Feedback)
		}
		cal := "-"
		switch r, err := store.Load(jc.Name); {
		case err == nil:
			cal = fmt.Sprintf("%d points, %s", len(r.Angles), r.Updated.Format("2006-01-02"))
		case !errors.Is(err, robot.ErrNotCalibrated):
			return err
		}
		rows = append(rows, []string{
			string(jc.Name),
			fmt.Sprintf("%d", jc.Joint),
			fmt.Sprintf("%d", jc.Channel),
			pin,
			fmt.Sprintf("%d..%d", jc.Min, jc.Max),
			string(jc.MirrorOf),
			cal,
		})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Name", "Joint", "Channel", "Pin", "Range", "Mirror of", "Calibration").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
			}
			return cellStyle
		})
	fmt.Println(t.Render())
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
