// relayctl pairs with a Bluetooth serial relay board and switches its
// channels with single-byte commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/relaylink/relayctl/internal/log"
	"github.com/relaylink/relayctl/pkg/bluez"
	"github.com/relaylink/relayctl/pkg/relay"
	"github.com/relaylink/relayctl/pkg/session"
	"github.com/relaylink/relayctl/pkg/transport/ble"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Commands that switch relays require a peripheral, given as -device ADDR
   or -name NAME (resolved against the bonded-device listing).
 * Run with no COMMAND on a terminal to enter an interactive shell.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Println(usage)
	fmt.Println("")
	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(a *app, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, a, args); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeErr("Not connected to the peripheral")
		} else if session.Temporary(err) {
			writeErr("Failed (may be transient): %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(a *app, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if args[0] == "help" {
			Usage()
			continue
		}
		runCommand(a, args, timeout)
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		adapterID      = flag.String("adapter", "", "ID of the Bluetooth adapter to use (Linux only, e.g. hci0)")
		deviceAddress  = flag.String("device", "", "Peripheral address, e.g. AA:BB:CC:DD:EE:FF")
		deviceName     = flag.String("name", "", "Peripheral name, resolved against bonded devices")
		commandTable   = flag.String("commands", "", "YAML command-table file (default: built-in relay1-relay4)")
		connectTimeout = flag.Duration("connect-timeout", session.DefaultConnectTimeout, "Maximum time to wait when connecting")
		commandTimeout = flag.Duration("command-timeout", 5*time.Second, "Maximum time to wait for a command to complete")
		debug          = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Usage = Usage
	flag.Parse()

	if *debug {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelError)
	}

	args := flag.Args()
	if len(args) > 0 {
		if _, ok := commands[args[0]]; !ok {
			writeErr("Unrecognized command: %s", args[0])
			return
		}
	} else if !term.IsTerminal(int(os.Stdin.Fd())) {
		Usage()
		return
	}

	table := relay.DefaultTable()
	if *commandTable != "" {
		var err error
		if table, err = relay.LoadTable(*commandTable); err != nil {
			writeErr("%s", err)
			return
		}
	}

	a := &app{table: table}

	bus, err := bluez.New(*adapterID)
	if err != nil {
		log.Warning("%s", err)
	} else {
		a.bus = bus
		defer bus.Close()
	}

	interactive := len(args) == 0
	needDevice := interactive
	if !interactive {
		needDevice = commands[args[0]].requiresDevice
	}

	if needDevice {
		address, err := resolveAddress(a.bus, *deviceAddress, *deviceName, *commandTimeout)
		if err != nil {
			writeErr("%s", err)
			return
		}

		adapter, err := ble.NewAdapter(*adapterID)
		if err != nil {
			writeErr("Failed to initialize BLE adapter: %s", err)
			return
		}
		defer adapter.Close()

		opts := []session.Option{session.WithConnectTimeout(*connectTimeout)}
		if a.bus != nil {
			if monitor, err := a.bus.Monitor(); err == nil {
				opts = append(opts, session.WithRadioMonitor(monitor))
				defer monitor.Close()
			} else {
				log.Warning("%s", err)
			}
		}
		a.manager = session.NewManager(ble.NewOpener(adapter), opts...)
		defer a.manager.Close()
		a.dispatcher = relay.NewDispatcher(table, a.manager)

		ctx, cancel := context.WithCancel(context.Background())
		err = a.manager.Connect(ctx, address)
		cancel()
		if err != nil {
			writeErr("Failed to connect to %s: %s", address, err)
			return
		}
	}

	if interactive {
		status = runInteractiveShell(a, *commandTimeout)
		return
	}
	status = runCommand(a, args, *commandTimeout)
}

// resolveAddress picks the peripheral address from the flags, consulting
// the bonded-device registry when only a name was given.
func resolveAddress(bus *bluez.Bus, address, name string, timeout time.Duration) (string, error) {
	if address != "" {
		return address, nil
	}
	if name == "" {
		return "", errors.New("must provide -device or -name")
	}
	if bus == nil {
		return "", errors.New("cannot resolve -name: bluetooth registry unavailable")
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	peripherals, err := bus.ListBonded(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range peripherals {
		if p.Name == name {
			return p.Address, nil
		}
	}
	return "", fmt.Errorf("no bonded peripheral named %q", name)
}
