package jtag

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes adapter families an XVC agent can serve.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsisdap"
	InterfaceKindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected adapter interface.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

type knownProbe struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownCMSISDAPProbes = []knownProbe{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDCMSISDAP, Description: "Raspberry Pi Debug Probe (CMSIS-DAP)"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
}

// LookupProbe returns the known CMSIS-DAP probe for vid:pid.
func LookupProbe(vid, pid uint16) (InterfaceInfo, bool) {
	for _, known := range knownCMSISDAPProbes {
		if known.VendorID == vid && known.ProductID == pid {
			return InterfaceInfo{
				Kind:        InterfaceKindCMSISDAP,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

// DiscoverInterfaces enumerates connected CMSIS-DAP probes. The simulator
// entry is always appended so an agent can be served without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if info, ok := LookupProbe(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, info)
		}
		return false
	})
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, nil
}
