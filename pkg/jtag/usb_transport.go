package jtag

import (
	"fmt"

	"github.com/google/gousb"
)

const (
	// JTAGProbe USB identifiers
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	defaultPacketSize = 64
)

// usbTransport carries CMSIS-DAP v2 packets over the probe's vendor
// interface bulk endpoints.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
}

func openUSBTransport(vid, pid uint16) (*usbTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}
	// Not supported on every platform; claiming still works without it.
	_ = dev.SetAutoDetach(true)

	t := &usbTransport{ctx: ctx, dev: dev, packetSize: defaultPacketSize}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// claimInterface claims the vendor-class interface (interface 0 when none
// advertises class 0xFF) and opens its bulk endpoints.
func (t *usbTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	number := 0
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			number = intf.Number
			break
		}
	}

	intf, err := cfg.Interface(number, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", number, err)
	}
	t.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			t.packetSize = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		return fmt.Errorf("bulk endpoints not found on interface %d", number)
	}

	if t.epOut, err = intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	return nil
}

// WriteRead performs a command/response transaction.
func (t *usbTransport) WriteRead(cmd []byte) ([]byte, error) {
	if _, err := t.epOut.Write(cmd); err != nil {
		return nil, fmt.Errorf("USB write failed: %w", err)
	}
	resp := make([]byte, t.packetSize)
	n, err := t.epIn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("USB read failed: %w", err)
	}
	return resp[:n], nil
}

func (t *usbTransport) PacketSize() int {
	return t.packetSize
}

// Close releases USB resources.
func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
