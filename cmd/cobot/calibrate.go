package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/cobot/pkg/robot"
	"github.com/gwillem/cobot/pkg/servo"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct {
	Yes  bool `short:"y" long:"yes" description:"Do not ask before each joint"`
	Args struct {
		Joints []string `positional-arg-name:"joint" description:"Joints to calibrate (default: all with feedback)"`
	} `positional-args:"yes"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	s, err := openSession("cobot.log")
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println(headerStyle.Render("cobot calibrate"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	joints := calibratableJoints(s.cfg)
	if len(c.Args.Joints) > 0 {
		joints = nil
		for _, name := range c.Args.Joints {
			joints = append(joints, robot.JointName(name))
		}
	}
	if len(joints) == 0 {
		fmt.Println("No joint with feedback configured.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, name := range joints {
		jc, ok := s.cfg.Joint(name)
		if !ok {
			return fmt.Errorf("%w: %s", servo.ErrUnknownJoint, name)
		}
		if !c.Yes && !confirm(fmt.Sprintf("Calibrate %s? It sweeps %d..%d° at minimum speed.", name, jc.Min, jc.Max)) {
			fmt.Println(dimStyle.Render("  skipped"))
			continue
		}

		fmt.Println(subHeaderStyle.Render("━━━ " + string(name) + " ━━━"))
		if err := runCalibration(ctx, s, name); err != nil {
			return err
		}
	}

	fmt.Println()
	records, err := s.store.All()
	if err != nil {
		return err
	}
	fmt.Println(renderCalibrations(records))
	fmt.Printf("Calibrations saved to %s\n", s.cfg.Store)
	return nil
}

func calibratableJoints(cfg *robot.Config) []robot.JointName {
	var out []robot.JointName
	for _, jc := range cfg.Joints {
		if jc.Feedback != servo.NoPin && jc.MirrorOf == "" {
			out = append(out, jc.Name)
		}
	}
	return out
}

func confirm(title string) bool {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Calibrate").
				Negative("Skip").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return ok
}

// runCalibration starts a calibration and follows its progress until the
// controller reports it idle. States from before the start are skipped.
func runCalibration(ctx context.Context, s *session, name robot.JointName) error {
	if err := s.ctrl.Calibrate(ctx, name); err != nil {
		return err
	}

	last := -1
	started := false
	for {
		select {
		case <-ctx.Done():
			fmt.Println(warnStyle.Render("  interrupted, previous table kept"))
			return s.ctrl.CancelCalibration(context.Background())
		case st := <-s.ctrl.States():
			if st.Calibrating == name {
				started = true
			}
			if !started {
				continue
			}
			if st.Calibrating == "" {
				for _, j := range st.Joints {
					if j.Name == name && j.Calibrated {
						fmt.Println(successStyle.Render("  done"))
					}
				}
				return nil
			}
			if st.Progress.Point != last {
				last = st.Progress.Point
				fmt.Printf("  point %d/%d\n", last+1, st.Progress.Total)
			}
		}
	}
}

func renderCalibrations(records []robot.CalibrationRecord) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableBadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(records))
	monotonic := make([]bool, 0, len(records))
	for _, r := range records {
		t, err := r.Table()
		ok := err == nil && t.Monotonic()
		monotonic = append(monotonic, ok)

		anchors := make([]string, len(r.Feedback))
		for i, fb := range r.Feedback {
			anchors[i] = fmt.Sprintf("%d", fb)
		}
		rows = append(rows, []string{
			string(r.Joint),
			fmt.Sprintf("%d", len(r.Angles)),
			strings.Join(anchors, " "),
			fmt.Sprintf("%t", ok),
			r.Updated.Format("2006-01-02 15:04"),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Points", "Feedback", "Monotonic", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 3:
				if row >= 0 && row < len(monotonic) && monotonic[row] {
					return tableGoodStyle
				}
				return tableBadStyle
			default:
				return tableCellStyle
			}
		})
	return t.Render()
}
