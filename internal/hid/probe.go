package hid

import (
	"fmt"

	"github.com/karalabe/usb"
)

// Probe explains why a vendor/product pair could not be opened. It asks the
// raw USB stack (independent of the HID backend in use) what is attached so
// the "not found" log line says whether the device is absent or merely not
// reachable through hidraw.
func Probe(vendorID, productID uint16) string {
	if !usb.Supported() {
		return "usb enumeration not supported on this platform"
	}

	infos, err := usb.Enumerate(vendorID, productID)
	if err != nil {
		return fmt.Sprintf("usb enumerate: %v", err)
	}
	if len(infos) > 0 {
		// Visible on the bus but the HID open failed: usually permissions.
		return fmt.Sprintf("found %d matching USB interface(s) at %s; check hidraw permissions", len(infos), infos[0].Path)
	}

	all, err := usb.Enumerate(0, 0)
	if err != nil {
		return fmt.Sprintf("no device (VID:0x%04X PID:0x%04X); enumerate all failed: %v", vendorID, productID, err)
	}
	return fmt.Sprintf("no device (VID:0x%04X PID:0x%04X); found %d other USB devices", vendorID, productID, len(all))
}
