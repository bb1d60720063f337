package ble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

const bleTimeout = 20 * time.Second

func newDevice(id string) (goble.Device, error) {
	opts := []goble.Option{
		goble.OptListenerTimeout(bleTimeout),
		goble.OptDialerTimeout(bleTimeout),
	}
	if id != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
		if err != nil {
			return nil, fmt.Errorf("ble: invalid adapter id %q", id)
		}
		opts = append(opts, goble.OptDeviceID(n))
	}
	return linux.NewDevice(opts...)
}
