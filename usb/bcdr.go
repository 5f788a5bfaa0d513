package usb

import "github.com/ardnew/f0usb/reg"

const bcdrDPPU = 1 << 15 // DP pull-up control

// BCDR is the battery charging detector register; only its pull-up is used.
type BCDR struct {
	r reg.Register32
}

// EnablePullup connects the DP pull-up, announcing the device to the host.
func (b BCDR) EnablePullup() { reg.SetBits(b.r, bcdrDPPU) }

// DisablePullup disconnects the DP pull-up.
func (b BCDR) DisablePullup() { reg.ClearBits(b.r, bcdrDPPU) }

// Pullup reports DPPU.
func (b BCDR) Pullup() bool { return reg.HasBits(b.r, bcdrDPPU) }
