package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ardnew/f0usb/hal/sim"
	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/usb"
)

// DefaultTimeout bounds each blocking stream command.
const DefaultTimeout = 100 * time.Millisecond

// Runner executes scenarios against a controller on a simulated target and
// writes a transcript line per command.
type Runner struct {
	Timeout time.Duration

	sys  *sim.System
	ctrl *usb.Controller
	resp *Responder
	w    io.Writer
}

// NewRunner builds a simulated target with a controller laid out by cfg.
// The transcript goes to w.
func NewRunner(cfg usb.Config, w io.Writer) (*Runner, error) {
	sys := sim.New()
	ctrl, err := usb.New(usb.Platform{
		Clock:  sys.Clock,
		NVIC:   sys.NVIC,
		SysCfg: sys.SysCfg,
		CPU:    sys.CPU,
		USB:    sys.USB,
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	sys.AttachUSB(ctrl.ISR)

	resp := NewResponder()
	ctrl.SetControlHandler(resp)

	return &Runner{
		Timeout: DefaultTimeout,
		sys:     sys,
		ctrl:    ctrl,
		resp:    resp,
		w:       w,
	}, nil
}

// Controller returns the controller under test.
func (r *Runner) Controller() *usb.Controller { return r.ctrl }

// System returns the simulated target.
func (r *Runner) System() *sim.System { return r.sys }

// Responder returns the control handler answering EP0.
func (r *Runner) Responder() *Responder { return r.resp }

// Run executes every command of s in order and stops at the first failure.
// Failed expectations wrap pkg.ErrMismatch.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	for _, cmd := range s.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := r.exec(ctx, cmd)
		if err != nil {
			pkg.LogWarn(pkg.ComponentScript, "command failed",
				"pos", cmd.Pos.String(),
				"error", err)
			fmt.Fprintf(r.w, "%4d  FAIL %v\n", cmd.Pos.Line, err)
			return fmt.Errorf("%s: %w", cmd.Pos, err)
		}
		pkg.LogDebug(pkg.ComponentScript, text, "pos", cmd.Pos.String())
		fmt.Fprintf(r.w, "%4d  %s\n", cmd.Pos.Line, text)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, cmd *Command) (string, error) {
	host := r.sys.Host
	switch {
	case cmd.Init:
		if err := r.ctrl.Init(); err != nil {
			return "", err
		}
		return "init: " + r.ctrl.State().String(), nil

	case cmd.Disable:
		if err := r.ctrl.Disable(); err != nil {
			return "", err
		}
		return "disable", nil

	case cmd.Reset:
		host.Reset()
		return "reset: " + r.ctrl.State().String(), nil

	case cmd.Suspend:
		host.Suspend()
		return "suspend: " + r.ctrl.State().String(), nil

	case cmd.Wakeup:
		host.Wakeup()
		return "wakeup: " + r.ctrl.State().String(), nil

	case cmd.Flush:
		tctx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()
		if err := r.ctrl.Flush(tctx); err != nil {
			return "", err
		}
		return "flush", nil

	case cmd.Setup != nil:
		return r.setup(cmd.Setup)

	case cmd.Out != nil:
		return r.out(cmd.Out)

	case cmd.In != nil:
		return r.in(cmd.In)

	case cmd.Write != nil:
		return r.write(ctx, cmd.Write)

	case cmd.Read != nil:
		return r.read(ctx, cmd.Read)

	case cmd.Expect != nil:
		return r.expect(cmd.Expect)
	}
	return "", fmt.Errorf("empty command: %w", pkg.ErrInvalidParameter)
}

func (r *Runner) setup(s *Setup) (string, error) {
	if len(s.Data) > 8 {
		return "", fmt.Errorf("setup packet of %d bytes: %w", len(s.Data), pkg.ErrInvalidParameter)
	}
	var pkt [8]byte
	copy(pkt[:], s.Data)
	if err := r.sys.Host.Setup(uint8(s.EP), pkt); err != nil {
		return "", err
	}
	return fmt.Sprintf("setup ep%d [% x]", s.EP, pkt[:]), nil
}

func (r *Runner) out(o *Out) (string, error) {
	data := o.Data.Data()
	got, err := handshake(r.sys.Host.Out(uint8(o.EP), data))
	if err != nil {
		return "", err
	}
	want := o.Handshake
	if want == "" {
		want = "ack"
	}
	if got != want {
		return "", fmt.Errorf("out ep%d answered %s, want %s: %w", o.EP, got, want, pkg.ErrMismatch)
	}
	return fmt.Sprintf("out ep%d %s: %s", o.EP, quote(data), got), nil
}

func (r *Runner) in(i *In) (string, error) {
	data, err := r.sys.Host.In(uint8(i.EP))
	got, err := handshake(err)
	if err != nil {
		return "", err
	}

	if w := i.Want; w != nil {
		switch {
		case w.Handshake != "" && w.Handshake != got:
			return "", fmt.Errorf("in ep%d answered %s, want %s: %w", i.EP, got, w.Handshake, pkg.ErrMismatch)
		case w.Payload != nil && got != "ack":
			return "", fmt.Errorf("in ep%d answered %s, want data: %w", i.EP, got, pkg.ErrMismatch)
		case w.Payload != nil && !bytes.Equal(data, w.Payload.Data()):
			return "", fmt.Errorf("in ep%d = %s, want %s: %w", i.EP, quote(data), quote(w.Payload.Data()), pkg.ErrMismatch)
		}
	}
	if got != "ack" {
		return fmt.Sprintf("in ep%d: %s", i.EP, got), nil
	}
	return fmt.Sprintf("in ep%d: %s", i.EP, quote(data)), nil
}

func (r *Runner) write(ctx context.Context, w *Write) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	for i := 0; i < len(w.Text); i++ {
		if err := r.ctrl.PutChar(tctx, w.Text[i]); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("write %q", w.Text), nil
}

func (r *Runner) read(ctx context.Context, rd *Read) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	data := make([]byte, 0, int(rd.N))
	for i := 0; i < int(rd.N); i++ {
		b, err := r.ctrl.GetChar(tctx)
		if err != nil {
			return "", fmt.Errorf("read %d of %d: %w", len(data), rd.N, err)
		}
		data = append(data, b)
	}
	if rd.Want != nil && string(data) != *rd.Want {
		return "", fmt.Errorf("read %q, want %q: %w", data, *rd.Want, pkg.ErrMismatch)
	}
	return fmt.Sprintf("read %q", data), nil
}

func (r *Runner) expect(e *Expect) (string, error) {
	switch {
	case e.State != nil:
		got := r.ctrl.State().String()
		if !strings.EqualFold(got, e.State.Name) {
			return "", fmt.Errorf("state %s, want %s: %w", got, e.State.Name, pkg.ErrMismatch)
		}
		return "state " + got, nil

	case e.Pending != nil:
		ep, err := r.endpoint(e.Pending.EP)
		if err != nil {
			return "", err
		}
		if ep.Pending() == e.Pending.Not {
			return "", fmt.Errorf("ep%d pending = %t: %w", e.Pending.EP, ep.Pending(), pkg.ErrMismatch)
		}
		return fmt.Sprintf("ep%d pending %t", e.Pending.EP, ep.Pending()), nil

	case e.Stat != nil:
		ep, err := r.endpoint(e.Stat.EP)
		if err != nil {
			return "", err
		}
		tx, rx := ep.Stat()
		got := tx
		if e.Stat.Dir == "rx" {
			got = rx
		}
		if !strings.EqualFold(got.String(), e.Stat.Stat) {
			return "", fmt.Errorf("ep%d %s %s, want %s: %w", e.Stat.EP, e.Stat.Dir, got, e.Stat.Stat, pkg.ErrMismatch)
		}
		return fmt.Sprintf("ep%d %s %s", e.Stat.EP, e.Stat.Dir, got), nil

	case e.Address != nil:
		got := r.ctrl.Address()
		if int(got) != int(e.Address.Addr) {
			return "", fmt.Errorf("address %d, want %d: %w", got, e.Address.Addr, pkg.ErrMismatch)
		}
		return fmt.Sprintf("address %d", got), nil
	}
	return "", fmt.Errorf("empty expectation: %w", pkg.ErrInvalidParameter)
}

// endpoint finds the slot whose endpoint address is addr.
func (r *Runner) endpoint(addr Number) (*usb.Endpoint, error) {
	for i := 0; i < usb.NumEndpoints; i++ {
		if ep := r.ctrl.Endpoint(i); ep != nil && int(ep.Address()) == int(addr) {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("ep%d: %w", addr, pkg.ErrInvalidEndpoint)
}

// handshake maps a host transaction error to its handshake name. Errors
// other than NAK and STALL are returned.
func handshake(err error) (string, error) {
	switch {
	case err == nil:
		return pkg.HandshakeACK.String(), nil
	case errors.Is(err, pkg.ErrNAK):
		return pkg.HandshakeNAK.String(), nil
	case errors.Is(err, pkg.ErrStall):
		return pkg.HandshakeStall.String(), nil
	}
	return "", err
}

func quote(data []byte) string {
	if len(data) == 0 {
		return "[]"
	}
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return fmt.Sprintf("[% x]", data)
		}
	}
	return fmt.Sprintf("%q", data)
}
