// Package cli implements the pit console: a line-oriented command loop on
// stdin for checking robot state and latching the emergency stop.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/events"
	"github.com/lancer-robotics/minibot/internal/robot"
)

// RobotConsole is the part of the robot the console reads and latches.
type RobotConsole interface {
	Snapshot() robot.Snapshot
	SetEmergencyStop(ctx context.Context, active bool, by string)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	robot    RobotConsole
	eventBus *events.EventBus
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a console reading commands from in and writing to out.
func NewCLI(r RobotConsole, eventBus *events.EventBus, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		robot:    r,
		eventBus: eventBus,
		in:       in,
		out:      out,
	}
}

// Start runs the command loop until ctx is cancelled, input ends, or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(c.out, "\nminibot console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI: input error")
		}
	}()

	for {
		fmt.Fprint(c.out, "minibot> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute runs one command and reports whether the console should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "controller", "c":
		c.printController()
	case "estop", "e", "stop":
		c.robot.SetEmergencyStop(ctx, true, "cli")
		fmt.Fprintln(c.out, "Emergency stop LATCHED. All actuators held at neutral.")
	case "release", "r":
		if len(args) == 0 || args[0] != "confirm" {
			return false, fmt.Errorf("usage: release confirm")
		}
		c.robot.SetEmergencyStop(ctx, false, "cli")
		fmt.Fprintln(c.out, "Emergency stop released.")
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down minibot...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{
				Type:   events.EventShutdown,
				Source: "cli",
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "  status            Show robot status and counters")
	fmt.Fprintln(c.out, "  controller        Show the last accepted controller input")
	fmt.Fprintln(c.out, "  estop             Latch the emergency stop")
	fmt.Fprintln(c.out, "  release confirm   Release the emergency stop")
	fmt.Fprintln(c.out, "  quit              Stop motors and exit")
	fmt.Fprintln(c.out, "  help              Show this help message")
	fmt.Fprintln(c.out)
}

func (c *CLI) printStatus() {
	s := c.robot.Snapshot()

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Field", "Value"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	estop := "released"
	if s.EmergencyStop {
		estop = "LATCHED"
	}

	tw.AppendBulk([][]string{
		{"Robot", s.RobotID},
		{"Game status", s.Status.String()},
		{"Handshake", yesNo(s.Connected)},
		{"E-stop", estop},
		{"Frames applied", u64(s.Counters.FramesApplied)},
		{"Frames dropped", u64(s.Counters.FramesDropped)},
		{"Pings answered", u64(s.Counters.PingsAnswered)},
		{"Status commands", u64(s.Counters.StatusCommands)},
		{"Ignored", u64(s.Counters.Ignored)},
		{"Truncated", u64(s.Counters.Truncated)},
	})
	tw.Render()
}

func (c *CLI) printController() {
	ctl := c.robot.Snapshot().Controller

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Left X", "Left Y", "Right X", "Right Y", "Buttons"})
	tw.SetAutoWrapText(false)

	var pressed []string
	for _, b := range []struct {
		name string
		on   bool
	}{
		{"cross", ctl.Cross},
		{"circle", ctl.Circle},
		{"square", ctl.Square},
		{"triangle", ctl.Triangle},
	} {
		if b.on {
			pressed = append(pressed, b.name)
		}
	}
	buttons := strings.Join(pressed, ",")
	if buttons == "" {
		buttons = "-"
	}

	tw.Append([]string{
		strconv.Itoa(int(ctl.LeftX)),
		strconv.Itoa(int(ctl.LeftY)),
		strconv.Itoa(int(ctl.RightX)),
		strconv.Itoa(int(ctl.RightY)),
		buttons,
	})
	tw.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
