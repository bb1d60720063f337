// Package bluez enumerates bonded peripherals and watches adapter power
// state through the BlueZ D-Bus API. It is the Linux backing for the
// registry and radio-monitor boundaries; it never scans.
package bluez

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/relaylink/relayctl/internal/log"
	"github.com/relaylink/relayctl/pkg/transport"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	propsIface    = "org.freedesktop.DBus.Properties"
	objectManager = "org.freedesktop.DBus.ObjectManager"
)

// Peripheral is a remote device already bonded with the host adapter.
// Identity is the Address; Name may be empty.
type Peripheral struct {
	Address string
	Name    string
}

// Registry lists peripherals bonded with the host. Implementations are
// read-only queries; every call reflects the current radio-stack state.
type Registry interface {
	ListBonded(ctx context.Context) ([]Peripheral, error)
}

// Bus wraps a system D-Bus connection scoped to one adapter.
type Bus struct {
	conn        *dbus.Conn
	adapterPath dbus.ObjectPath
}

// New connects to the system bus. The adapter names an HCI device such as
// "hci0"; an empty string selects hci0.
func New(adapter string) (*Bus, error) {
	if adapter == "" {
		adapter = "hci0"
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bluez: list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("bluez: org.bluez not on system bus: %w", transport.ErrRadioUnavailable)
	}

	return &Bus{
		conn:        conn,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
	}, nil
}

func (b *Bus) Close() {
	b.conn.Close()
}

// Powered reports the adapter's power state.
func (b *Bus) Powered() (bool, error) {
	var v dbus.Variant
	obj := b.conn.Object(busName, b.adapterPath)
	if err := obj.Call(propsIface+".Get", 0, adapterIface, "Powered").Store(&v); err != nil {
		return false, fmt.Errorf("bluez: read Powered: %w", err)
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: Powered is not bool")
	}
	return powered, nil
}

// ListBonded enumerates devices under the adapter with Paired=true. It
// fails with transport.ErrRadioUnavailable when the adapter is powered off.
func (b *Bus) ListBonded(ctx context.Context) ([]Peripheral, error) {
	powered, err := b.Powered()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, transport.ErrRadioUnavailable)
	}
	if !powered {
		return nil, fmt.Errorf("bluez: adapter %s is powered off: %w", b.adapterPath, transport.ErrRadioUnavailable)
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := b.conn.Object(busName, "/")
	if err := obj.CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("bluez: enumerate objects: %w", err)
	}

	var peripherals []Peripheral
	prefix := string(b.adapterPath) + "/"
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		device, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if paired, _ := device["Paired"].Value().(bool); !paired {
			continue
		}
		p := Peripheral{}
		p.Address, _ = device["Address"].Value().(string)
		p.Name, _ = device["Alias"].Value().(string)
		if p.Name == "" {
			p.Name, _ = device["Name"].Value().(string)
		}
		if p.Address == "" {
			p.Address = AddressFromPath(path)
		}
		if p.Address != "" {
			peripherals = append(peripherals, p)
		}
	}
	sort.Slice(peripherals, func(i, j int) bool {
		return peripherals[i].Address < peripherals[j].Address
	})
	return peripherals, nil
}

// DevicePath converts a MAC address such as "AA:BB:CC:DD:EE:FF" to the
// BlueZ object path for the device under this adapter.
func (b *Bus) DevicePath(address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(b.adapterPath) + "/dev_" + strings.ReplaceAll(address, ":", "_"))
}

// AddressFromPath extracts the MAC address from a BlueZ device object path,
// or returns "" when the path does not name a device.
func AddressFromPath(path dbus.ObjectPath) string {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ""
	}
	return strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
}

// Monitor reports adapter power transitions.
type Monitor struct {
	out    chan bool
	cancel context.CancelFunc
}

// Monitor subscribes to PropertiesChanged on the adapter and forwards
// Powered transitions. Close the monitor to release the signal match.
func (b *Bus) Monitor() (*Monitor, error) {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(b.adapterPath),
	); err != nil {
		return nil, fmt.Errorf("bluez: add signal match: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		out:    make(chan bool, 4),
		cancel: cancel,
	}
	go m.pump(ctx, b, signals)
	return m, nil
}

// Changes returns a channel of Powered values, one per transition. The
// channel is buffered; if the consumer stalls the oldest value is dropped.
func (m *Monitor) Changes() <-chan bool {
	return m.out
}

func (m *Monitor) Close() {
	m.cancel()
}

func (m *Monitor) pump(ctx context.Context, b *Bus, signals chan *dbus.Signal) {
	defer b.conn.RemoveSignal(signals)
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			powered, ok := poweredFromSignal(sig)
			if !ok {
				continue
			}
			log.Info("bluez: adapter powered=%t", powered)
			for {
				select {
				case m.out <- powered:
				default:
					select {
					case <-m.out:
					default:
					}
					continue
				}
				break
			}
		}
	}
}

func poweredFromSignal(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Name != propsIface+".PropertiesChanged" || len(sig.Body) < 2 {
		return false, false
	}
	if iface, _ := sig.Body[0].(string); iface != adapterIface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed["Powered"]
	if !ok {
		return false, false
	}
	powered, ok := v.Value().(bool)
	return powered, ok
}
