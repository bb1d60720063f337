package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/relaylink/relayctl/pkg/bluez"
	"github.com/relaylink/relayctl/pkg/relay"
	"github.com/relaylink/relayctl/pkg/session"
)

var ErrCommandLineArgs = errors.New("invalid command line arguments")

const defaultPulseHold = 500 * time.Millisecond

type Argument struct {
	name string
	help string
}

// app carries the wired-up collaborators a command may need. manager and
// dispatcher are nil for commands that do not require a device.
type app struct {
	bus        *bluez.Bus
	table      *relay.Table
	manager    *session.Manager
	dispatcher *relay.Dispatcher
}

type Handler func(ctx context.Context, a *app, args map[string]string) error

type Command struct {
	help           string
	requiresDevice bool // True if the command needs a connected session
	args           []Argument
	optional       []Argument
	handler        Handler
}

var commands = map[string]*Command{
	"list": {
		help: "List peripherals bonded with the host adapter",
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			if a.bus == nil {
				return errors.New("bluetooth registry unavailable")
			}
			peripherals, err := a.bus.ListBonded(ctx)
			if err != nil {
				return err
			}
			for _, p := range peripherals {
				fmt.Printf("%s\t%s\n", p.Address, p.Name)
			}
			return nil
		},
	},
	"on": {
		help:           "Switch a relay channel on",
		requiresDevice: true,
		args: []Argument{
			{name: "RELAY", help: "Channel label, e.g. relay1"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			return a.dispatcher.Set(ctx, args["RELAY"], true)
		},
	},
	"off": {
		help:           "Switch a relay channel off",
		requiresDevice: true,
		args: []Argument{
			{name: "RELAY", help: "Channel label, e.g. relay1"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			return a.dispatcher.Set(ctx, args["RELAY"], false)
		},
	},
	"pulse": {
		help:           "Switch a relay channel on, hold, then off",
		requiresDevice: true,
		args: []Argument{
			{name: "RELAY", help: "Channel label, e.g. relay1"},
		},
		optional: []Argument{
			{name: "DURATION", help: "Hold duration, e.g. 500ms (default)"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			hold := defaultPulseHold
			if value, ok := args["DURATION"]; ok {
				var err error
				if hold, err = time.ParseDuration(value); err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
			}
			return a.dispatcher.Pulse(ctx, args["RELAY"], hold)
		},
	},
	"send": {
		help:           "Send raw bytes to the peripheral",
		requiresDevice: true,
		args: []Argument{
			{name: "PAYLOAD", help: "Bytes to transmit, verbatim"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			return a.manager.Send(ctx, []byte(args["PAYLOAD"]))
		},
	},
	"status": {
		help:           "Print the session status",
		requiresDevice: true,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			fmt.Println(a.manager.Status())
			return nil
		},
	},
	"commands": {
		help: "Print the active command table",
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			for _, cmd := range a.table.Commands() {
				fmt.Printf("%s\ton=%c off=%c\n", cmd.Label, cmd.On, cmd.Off)
			}
			return nil
		},
	},
	"watch": {
		help:           "Print status transitions and inbound data until interrupted",
		requiresDevice: true,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			// Runs until interrupt or stream end, not the command timeout.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			for {
				select {
				case event := <-a.manager.Events():
					if event.Err != nil {
						fmt.Printf("status: %s (%s)\n", event.Status, event.Err)
					} else {
						fmt.Printf("status: %s\n", event.Status)
					}
					if event.Status == session.StatusDisconnected || event.Status == session.StatusFailed {
						return nil
					}
				case chunk := <-a.manager.Data():
					fmt.Printf("data: %02x\n", chunk)
				case <-ctx.Done():
					return nil
				}
			}
		},
	},
}

func execute(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	info, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unrecognized command: %s", args[0])
	}
	if info.requiresDevice && a.manager == nil {
		return fmt.Errorf("command %s requires a peripheral; provide -device or -name", args[0])
	}

	args = args[1:]
	if len(args) < len(info.args) || len(args) > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command arguments")
		info.Usage(os.Stderr)
		return ErrCommandLineArgs
	}
	keywords := make(map[string]string)
	for i, value := range args {
		if i < len(info.args) {
			keywords[info.args[i].name] = value
		} else {
			keywords[info.optional[i-len(info.args)].name] = value
		}
	}
	return info.handler(ctx, a, keywords)
}

func (c *Command) Usage(w *os.File) {
	fmt.Fprintf(w, "  %s", strings.Join(argumentNames(c.args), " "))
	if len(c.optional) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(argumentNames(c.optional), " "))
	}
	fmt.Fprintln(w)
	for _, arg := range append(append([]Argument{}, c.args...), c.optional...) {
		fmt.Fprintf(w, "    %-10s %s\n", arg.name, arg.help)
	}
}

func argumentNames(args []Argument) []string {
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = arg.name
	}
	return names
}
