// Command f0usb inspects and exercises the STM32F0 USB device controller:
// packet memory layout, simulated scenarios, memory images and a
// host-side loopback probe.
package main

import "github.com/ardnew/f0usb/cmd/f0usb/cmd"

func main() {
	cmd.Execute()
}
