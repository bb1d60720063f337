package ble

import (
	"context"
	"errors"
	"fmt"

	goble "github.com/go-ble/ble"

	"github.com/relaylink/relayctl/internal/log"
)

// NewAdapter initializes the host radio. The id selects the HCI device on
// Linux ("hci0"); other platforms ignore it.
func NewAdapter(id string) (Adapter, error) {
	device, err := newDevice(id)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	return &adapter{device: device}, nil
}

type adapter struct {
	device goble.Device
}

func (a *adapter) Dial(ctx context.Context, address string) (Peer, error) {
	log.Debug("Dialing %s...", address)
	client, err := a.device.Dial(ctx, goble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return &peer{client: client}, nil
}

func (a *adapter) Close() error {
	if a.device == nil {
		return nil
	}
	device := a.device
	a.device = nil
	return device.Stop()
}

type peer struct {
	client goble.Client
}

func (p *peer) Service(uuid string) (Service, error) {
	services, err := p.client.DiscoverServices([]goble.UUID{goble.MustParse(uuid)})
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enumerate device services: %s", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("ble: failed to discover service")
	}
	return &service{client: p.client, service: services[0]}, nil
}

func (p *peer) Disconnected() <-chan struct{} {
	return p.client.Disconnected()
}

func (p *peer) Close() error {
	err1 := p.client.ClearSubscriptions()
	err2 := p.client.CancelConnection()
	return errors.Join(err1, err2)
}

type service struct {
	client  goble.Client
	service *goble.Service
}

func (s *service) Notify(uuid string, callback func(buf []byte)) error {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return err
	}
	return s.client.Subscribe(characteristic, false, callback)
}

func (s *service) Writer(uuid string) (Writer, error) {
	characteristic, err := s.discover(uuid)
	if err != nil {
		return nil, err
	}
	return &writer{client: s.client, characteristic: characteristic}, nil
}

func (s *service) discover(uuidStr string) (*goble.Characteristic, error) {
	uuid := goble.MustParse(uuidStr)
	characteristics, err := s.client.DiscoverCharacteristics([]goble.UUID{uuid}, s.service)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to discover service characteristics: %s", err)
	}

	var characteristic *goble.Characteristic
	for _, char := range characteristics {
		if char.UUID.Equal(uuid) {
			characteristic = char
			break
		}
	}
	if characteristic == nil {
		return nil, fmt.Errorf("ble: characteristic %s not found", uuidStr)
	}

	if _, err := s.client.DiscoverDescriptors(nil, characteristic); err != nil {
		return nil, fmt.Errorf("ble: couldn't fetch descriptors: %s", err)
	}
	return characteristic, nil
}

type writer struct {
	client         goble.Client
	characteristic *goble.Characteristic
}

func (w *writer) Write(p []byte) (int, error) {
	if err := w.client.WriteCharacteristic(w.characteristic, p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *writer) MTU(rxMTU int) (txMTU int, err error) {
	return w.client.ExchangeMTU(rxMTU)
}
