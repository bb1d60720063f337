package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestDevicePath(t *testing.T) {
	b := &Bus{adapterPath: "/org/bluez/hci0"}
	got := b.DevicePath("AA:BB:CC:DD:EE:FF")
	want := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	if got != want {
		t.Errorf("DevicePath = %s, want %s", got, want)
	}
}

func TestAddressFromPath(t *testing.T) {
	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "AA:BB:CC:DD:EE:FF"},
		{"/org/bluez/hci1/dev_00_11_22_33_44_55", "00:11:22:33:44:55"},
		{"/org/bluez/hci0", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := AddressFromPath(tt.path); got != tt.want {
			t.Errorf("AddressFromPath(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPoweredFromSignal(t *testing.T) {
	signal := func(iface string, changed map[string]dbus.Variant) *dbus.Signal {
		return &dbus.Signal{
			Name: propsIface + ".PropertiesChanged",
			Body: []interface{}{iface, changed, []string{}},
		}
	}

	tests := []struct {
		name    string
		sig     *dbus.Signal
		want    bool
		matched bool
	}{
		{
			name:    "powered off",
			sig:     signal(adapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(false)}),
			want:    false,
			matched: true,
		},
		{
			name:    "powered on",
			sig:     signal(adapterIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}),
			want:    true,
			matched: true,
		},
		{
			name:    "other property",
			sig:     signal(adapterIface, map[string]dbus.Variant{"Discovering": dbus.MakeVariant(true)}),
			matched: false,
		},
		{
			name:    "other interface",
			sig:     signal(deviceIface, map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}),
			matched: false,
		},
		{
			name:    "nil signal",
			sig:     nil,
			matched: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := poweredFromSignal(tt.sig)
			if matched != tt.matched {
				t.Fatalf("matched = %t, want %t", matched, tt.matched)
			}
			if matched && got != tt.want {
				t.Errorf("powered = %t, want %t", got, tt.want)
			}
		})
	}
}
