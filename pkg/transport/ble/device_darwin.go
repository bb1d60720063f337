package ble

import (
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"

	"github.com/relaylink/relayctl/internal/log"
)

func newDevice(id string) (goble.Device, error) {
	if id != "" {
		log.Warning("ble: adapter id is not supported on Darwin")
	}
	return darwin.NewDevice()
}
