package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/grblmini/gms/gcode"
	"github.com/grblmini/gms/grbl"
	iFmt "github.com/grblmini/gms/internal/fmt"
	"github.com/grblmini/gms/worker"
)

var imperialJog bool
var defaultImperialJog = false

// Default jog feeds per axis, millimeters per minute. Z axes are usually
// leadscrew driven and slower.
const (
	jogFeedXY = 50
	jogFeedZ  = 30
)

const consoleHelp = `Console commands:
  :help                      this list
  :status                    request and print a status report
  :hold                      feed hold (pause motion)
  :resume                    cycle start (resume motion)
  :reset                     soft reset (ctrl-x)
  :cancel                    cancel the running job (soft reset)
  :jogcancel                 cancel an in-flight jog
  :feed PERCENT              step feed override to PERCENT (10-200)
  :feed-reset                feed override back to 100%
  :spindle PERCENT           step spindle override to PERCENT (50-200)
  :spindle-reset             spindle override back to 100%
  :run PATH                  sanitize PATH and run it as a macro
  :jog AXIS DISTANCE [FEED]  relative jog, e.g. :jog X 10.5 500
  :quit                      disconnect and exit
Anything else is sent to the controller as a command line.`

type console struct {
	post            func(grbl.Command) bool
	events          <-chan grbl.Event
	feedOverride    int
	spindleOverride int
	statusPending   bool
	imperial        bool
}

func newConsole(post func(grbl.Command) bool, events <-chan grbl.Event, imperial bool) *console {
	return &console{
		post:            post,
		events:          events,
		feedOverride:    grbl.OverrideDefault,
		spindleOverride: grbl.OverrideDefault,
		imperial:        imperial,
	}
}

// run multiplexes operator input with engine events until the engine
// shuts down or the context is cancelled. The stdin reader cannot be
// unblocked on cancellation; it is abandoned and dies with the process.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println("Plain lines go to the controller; :help lists console commands.")

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return nil
			}
			c.render(ev)
		case line, ok := <-lines:
			if !ok {
				c.post(grbl.Shutdown{})
				lines = nil
				continue
			}
			c.handle(line)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *console) render(ev grbl.Event) {
	switch e := ev.(type) {
	case grbl.Log:
		fmt.Println(e.Message)
	case grbl.Error:
		fmt.Println(e.Message)
	case grbl.Status:
		if c.statusPending {
			c.statusPending = false
			fmt.Println(formatStatus(e))
		}
	}
}

func (c *console) handle(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, ":") {
		c.post(grbl.SendLine{Text: line})
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":help":
		fmt.Println(consoleHelp)
	case ":status":
		c.statusPending = true
		c.post(grbl.RealTime{Cmd: grbl.RealTimeStatusQuery})
	case ":hold":
		c.post(grbl.RealTime{Cmd: grbl.RealTimeFeedHold})
		c.post(grbl.Hold{})
	case ":resume":
		c.post(grbl.RealTime{Cmd: grbl.RealTimeCycleStartResume})
		c.post(grbl.Resume{})
	case ":reset":
		c.post(grbl.SoftReset{})
	case ":cancel":
		c.post(grbl.CancelJob{})
	case ":jogcancel":
		c.post(grbl.RealTime{Cmd: grbl.RealTimeJogCancel})
	case ":feed":
		c.stepOverride(fields, &c.feedOverride, grbl.FeedOverrideSteps)
	case ":feed-reset":
		c.feedOverride = grbl.OverrideDefault
		c.post(grbl.RealTime{Cmd: grbl.RealTimeFeedReset})
		fmt.Printf("feed override: %d%%\n", c.feedOverride)
	case ":spindle":
		c.stepOverride(fields, &c.spindleOverride, grbl.SpindleOverrideSteps)
	case ":spindle-reset":
		c.spindleOverride = grbl.OverrideDefault
		c.post(grbl.RealTime{Cmd: grbl.RealTimeSpindleReset})
		fmt.Printf("spindle override: %d%%\n", c.spindleOverride)
	case ":run":
		if len(fields) != 2 {
			fmt.Println("usage: :run PATH")
			return
		}
		c.runMacro(fields[1])
	case ":jog":
		c.jog(fields)
	case ":quit":
		c.post(grbl.Shutdown{})
	default:
		fmt.Printf("unknown console command %s, :help lists them\n", fields[0])
	}
}

// stepOverride posts the real-time byte sequence moving an override from
// its tracked value to the requested percentage. The controller applies
// each step relative to its own current value, so the tracked value is
// only honest if overrides are driven from here alone.
func (c *console) stepOverride(fields []string, current *int, steps func(current, target int) ([]grbl.RealTimeCommand, int)) {
	if len(fields) != 2 {
		fmt.Printf("usage: %s PERCENT\n", fields[0])
		return
	}
	target, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Printf("not a percentage: %s\n", fields[1])
		return
	}
	cmds, achieved := steps(*current, target)
	for _, cmd := range cmds {
		c.post(grbl.RealTime{Cmd: cmd})
	}
	*current = achieved
	fmt.Printf("%s override: %d%%\n", strings.TrimPrefix(fields[0], ":"), achieved)
}

func (c *console) runMacro(path string) {
	lines, err := macroLines(path)
	if err != nil {
		fmt.Printf("failed to read %s: %v\n", path, err)
		return
	}
	if len(lines) == 0 {
		fmt.Printf("%s has no sendable lines\n", path)
		return
	}
	c.post(grbl.RunLines{Lines: lines})
}

func macroLines(path string) (lines []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := gcode.Clean(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func (c *console) jog(fields []string) {
	if len(fields) != 3 && len(fields) != 4 {
		fmt.Println("usage: :jog AXIS DISTANCE [FEED]")
		return
	}
	axisWord := fields[1]
	if len(axisWord) != 1 || !strings.ContainsRune("XYZxyz", rune(axisWord[0])) {
		fmt.Printf("not an axis: %s\n", axisWord)
		return
	}
	axis := rune(axisWord[0])
	distance, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		fmt.Printf("not a distance: %s\n", fields[2])
		return
	}
	feed := jogFeed(axis)
	if len(fields) == 4 {
		feed, err = strconv.ParseFloat(fields[3], 64)
		if err != nil || feed <= 0 {
			fmt.Printf("not a feed rate: %s\n", fields[3])
			return
		}
	}
	c.post(grbl.SendLine{Text: gcode.Jog(axis, distance, feed, c.imperial)})
}

func jogFeed(axis rune) float64 {
	if axis == 'Z' || axis == 'z' {
		return jogFeedZ
	}
	return jogFeedXY
}

func formatStatus(st grbl.Status) string {
	r := st.Report
	if r == nil {
		return st.Raw
	}
	parts := []string{r.StateToken}
	if p := r.MachinePosition; p != nil {
		parts = append(parts, "MPos "+p.String())
	}
	if p := r.WorkPosition; p != nil {
		parts = append(parts, "WPos "+p.String())
	}
	if r.PlannerFree != nil && r.RxFree != nil {
		parts = append(parts, fmt.Sprintf("Bf %d,%d", *r.PlannerFree, *r.RxFree))
	}
	if r.Feed != nil {
		parts = append(parts, "F"+iFmt.SprintFloat(*r.Feed, 0))
	}
	if len(r.Pins) > 0 {
		parts = append(parts, "Pn "+r.Pins.String())
	}
	if len(r.Accessories) > 0 {
		parts = append(parts, "A "+r.Accessories.String())
	}
	return strings.Join(parts, " | ")
}

var ConsoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive line console to the controller.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		ctx, _ := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
		)
		cmd.SetContext(ctx)

		openPortFn, err := GetOpenPortFn()
		if err != nil {
			return err
		}

		eng := grbl.NewEngine(GetEngineConfig(), openPortFn)
		c := newConsole(eng.Post, eng.Events(), imperialJog)

		m := worker.NewManager()
		m.Add("Engine", eng.Run)
		m.Add("Console", c.run)
		m.Start(ctx)

		return worker.Err(m.Wait(ctx))
	}),
}

func init() {
	AddPortFlags(ConsoleCmd)
	AddEngineFlags(ConsoleCmd)

	ConsoleCmd.PersistentFlags().BoolVar(&imperialJog, "imperial", defaultImperialJog, "Jog in inches (G20) instead of millimeters (G21)")

	RootCmd.AddCommand(ConsoleCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		imperialJog = defaultImperialJog
	})
}
