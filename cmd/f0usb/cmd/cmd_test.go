package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/script"
	"github.com/ardnew/f0usb/usb"
)

const loopbackScript = "../../../script/testdata/loopback.f0s"

// execute runs the root command with args after resetting global flags.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logLevel, outputJSON, endpointSpecs = "error", false, nil
	cpuProfile, memProfile = "", ""
	layoutInit = false
	runHex, runTimeout = "", script.DefaultTimeout
	dumpOutput, dumpScript, dumpBase, dumpLine = "", "", PacketMemoryBase, 16

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	if perr := profiling.Stop(); err == nil {
		err = perr
	}
	profiling = nil
	return out.String(), err
}

func TestLayout(t *testing.T) {
	out, err := execute(t, "layout")
	if err != nil {
		t.Fatalf("layout error = %v", err)
	}
	for _, want := range []string{"btable", "ep0 rx", "ep2 output", "0x00a8", "used 232 of 1024 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("layout output missing %q:\n%s", want, out)
		}
	}
}

func TestLayoutJSON(t *testing.T) {
	out, err := execute(t, "layout", "--init", "--json")
	if err != nil {
		t.Fatalf("layout error = %v", err)
	}
	var info LayoutInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out)
	}
	if info.Size != 1024 || info.Used != 0xE8 {
		t.Errorf("Size, Used = %d, %d, want 1024, 232", info.Size, info.Used)
	}
	if len(info.Endpoints) != usb.NumEndpoints {
		t.Fatalf("len(Endpoints) = %d", len(info.Endpoints))
	}
	wantEPR := []string{"0x3220", "0x0621", "0x3004", "0x0025"}
	for i, ep := range info.Endpoints {
		if ep.EPR != wantEPR[i] {
			t.Errorf("Endpoints[%d].EPR = %s, want %s", i, ep.EPR, wantEPR[i])
		}
	}
	if info.Endpoints[2].StatRX != "valid" || info.Endpoints[3].StatTX != "nak" {
		t.Errorf("bulk stats = %+v %+v", info.Endpoints[2], info.Endpoints[3])
	}
}

func TestLayoutOverride(t *testing.T) {
	out, err := execute(t, "layout", "--json", "--ep", "1=output:2", "--ep", "3=input:3:interrupt")
	if err != nil {
		t.Fatalf("layout error = %v", err)
	}
	var info LayoutInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ep := info.Endpoints[1]; ep.Kind != "output" || ep.Address != 2 || ep.MaxSize != 64 {
		t.Errorf("Endpoints[1] = %+v", ep)
	}
	if ep := info.Endpoints[3]; ep.Kind != "input" || ep.MaxSize != 8 {
		t.Errorf("Endpoints[3] = %+v", ep)
	}

	if _, err := execute(t, "layout", "--ep", "2=control:0"); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("second control slot error = %v, want ErrInvalidParameter", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		spec    string
		slot    int
		want    usb.EndpointConfig
		wantErr error
	}{
		{"1=interrupt:1", 1, usb.EndpointConfig{Address: 1, Kind: usb.KindInterrupt, Class: usb.ClassInterrupt}, nil},
		{"2=output:0x4", 2, usb.EndpointConfig{Address: 4, Kind: usb.KindOutput, Class: usb.ClassBulk}, nil},
		{"0=control:0", 0, usb.EndpointConfig{Kind: usb.KindControl, Class: usb.ClassControl}, nil},
		{"3=input:5:interrupt", 3, usb.EndpointConfig{Address: 5, Kind: usb.KindInput, Class: usb.ClassInterrupt}, nil},
		{"3input:5", 0, usb.EndpointConfig{}, pkg.ErrInvalidParameter},
		{"4=input:5", 0, usb.EndpointConfig{}, pkg.ErrInvalidEndpoint},
		{"x=input:5", 0, usb.EndpointConfig{}, pkg.ErrInvalidEndpoint},
		{"1=bulk:5", 0, usb.EndpointConfig{}, pkg.ErrInvalidKind},
		{"1=input:16", 0, usb.EndpointConfig{}, pkg.ErrInvalidParameter},
		{"1=input", 0, usb.EndpointConfig{}, pkg.ErrInvalidParameter},
		{"1=input:5:huge", 0, usb.EndpointConfig{}, pkg.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			slot, got, err := parseEndpoint(tt.spec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("parseEndpoint() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint() error = %v", err)
			}
			if slot != tt.slot || got != tt.want {
				t.Errorf("parseEndpoint() = %d, %+v, want %d, %+v", slot, got, tt.slot, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	hexPath := filepath.Join(t.TempDir(), "pma.hex")
	out, err := execute(t, "run", "--hex", hexPath, loopbackScript)
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "== "+loopbackScript) || !strings.Contains(out, `in ep5: "hi"`) {
		t.Errorf("run output:\n%s", out)
	}

	f, err := os.Open(hexPath)
	if err != nil {
		t.Fatalf("hex file: %v", err)
	}
	defer f.Close()
	image, err := readHex(f, PacketMemoryBase, 1024)
	if err != nil {
		t.Fatalf("readHex() error = %v", err)
	}
	// EP3 transmitted "hi" from its buffer at 0xA8.
	if got := string(image[0xA8:0xAA]); got != "hi" {
		t.Errorf("EP3 buffer = %q, want %q", got, "hi")
	}
}

func TestRunFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fail.f0s")
	if err := os.WriteFile(path, []byte("init\nexpect state suspended\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "run", path)
	if !errors.Is(err, pkg.ErrMismatch) {
		t.Errorf("run error = %v, want ErrMismatch", err)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("run output missing FAIL:\n%s", out)
	}

	if _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.f0s")); err == nil {
		t.Error("run missing file error = nil")
	}
}

func TestDump(t *testing.T) {
	out, err := execute(t, "dump")
	if err != nil {
		t.Fatalf("dump error = %v", err)
	}
	if !strings.HasPrefix(out, ":") || !strings.Contains(out, ":00000001FF") {
		t.Errorf("dump is not Intel HEX:\n%s", out)
	}

	image, err := readHex(strings.NewReader(out), PacketMemoryBase, 1024)
	if err != nil {
		t.Fatalf("readHex() error = %v", err)
	}
	r, err := script.NewRunner(usb.DefaultConfig(), &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Controller().Init(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(image, r.Controller().Arena().Bytes()) {
		t.Error("dumped image differs from packet memory after Init")
	}
}

func TestDumpScriptToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pma.hex")
	if _, err := execute(t, "dump", "--script", loopbackScript, "-o", path, "--base", "0"); err != nil {
		t.Fatalf("dump error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	image, err := readHex(f, 0, 1024)
	if err != nil {
		t.Fatalf("readHex() error = %v", err)
	}
	if got := string(image[0x68:0x6A]); got != "ok" {
		t.Errorf("EP2 buffer = %q, want %q", got, "ok")
	}
}

func TestHexWriteErrors(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	tests := []struct {
		name string
		args []string
	}{
		{"dump", []string{"dump", "-o", "/dev/full"}},
		{"run", []string{"run", "--hex", "/dev/full", loopbackScript}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("%s to a full device: error = nil", tt.name)
			}
		})
	}
}

func TestDumpLineLength(t *testing.T) {
	for _, line := range []string{"0", "256"} {
		if _, err := execute(t, "dump", "--line", line); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("dump --line %s error = %v, want ErrInvalidParameter", line, err)
		}
	}
}

func TestProfileFlags(t *testing.T) {
	dir := t.TempDir()
	cpu, heap := filepath.Join(dir, "cpu.prof"), filepath.Join(dir, "heap.prof")
	if _, err := execute(t, "layout", "--cpuprofile", cpu, "--memprofile", heap); err != nil {
		t.Fatalf("layout error = %v", err)
	}
	for _, path := range []string{cpu, heap} {
		if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
			t.Errorf("%s not written: %v", filepath.Base(path), err)
		}
	}
}

func TestBadLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"layout", "--log-level", "loud"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.ExecuteContext(context.Background()); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Execute() error = %v, want ErrInvalidParameter", err)
	}
	logLevel = "error"
}

// echo is an in-memory bulk pair that returns every packet written to it.
type echo struct {
	ch      chan []byte
	corrupt int
	mu      sync.Mutex
	written int
}

func newEcho() *echo { return &echo{ch: make(chan []byte, 16), corrupt: -1} }

func (e *echo) WriteContext(ctx context.Context, buf []byte) (int, error) {
	pkt := bytes.Clone(buf)
	e.mu.Lock()
	if e.corrupt >= e.written && e.corrupt < e.written+len(pkt) {
		pkt[e.corrupt-e.written] ^= 0xFF
	}
	e.written += len(pkt)
	e.mu.Unlock()
	select {
	case e.ch <- pkt:
		return len(buf), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *echo) ReadContext(ctx context.Context, buf []byte) (int, error) {
	select {
	case pkt := <-e.ch:
		return copy(buf, pkt), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestLoopback(t *testing.T) {
	e := newEcho()
	sent := pattern(1000)
	got, err := loopback(context.Background(), e, e, sent, 64, 64)
	if err != nil {
		t.Fatalf("loopback() error = %v", err)
	}
	if i := mismatch(sent, got); i != -1 {
		t.Errorf("mismatch at %d", i)
	}
}

func TestLoopbackCorrupt(t *testing.T) {
	e := newEcho()
	e.corrupt = 130
	sent := pattern(256)
	got, err := loopback(context.Background(), e, e, sent, 64, 64)
	if err != nil {
		t.Fatalf("loopback() error = %v", err)
	}
	if i := mismatch(sent, got); i != 130 {
		t.Errorf("mismatch() = %d, want 130", i)
	}
}

// sink accepts writes and never answers reads.
type sink struct{}

func (sink) WriteContext(ctx context.Context, buf []byte) (int, error) { return len(buf), nil }

func (sink) ReadContext(ctx context.Context, buf []byte) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestLoopbackTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := loopback(ctx, sink{}, sink{}, pattern(64), 64, 64)
	if !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("loopback() error = %v, want ErrTimeout", err)
	}
}

func TestPatternAndMismatch(t *testing.T) {
	p := pattern(512)
	for _, period := range []int{8, 32, 64} {
		if bytes.Equal(p[:period], p[period:2*period]) {
			t.Errorf("pattern repeats with period %d", period)
		}
	}

	tests := []struct {
		name      string
		want, got []byte
		idx       int
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, -1},
		{"differs", []byte{1, 2, 3}, []byte{1, 9, 3}, 1},
		{"short", []byte{1, 2, 3}, []byte{1, 2}, 2},
		{"long", []byte{1, 2}, []byte{1, 2, 3}, 2},
		{"empty", nil, nil, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mismatch(tt.want, tt.got); got != tt.idx {
				t.Errorf("mismatch() = %d, want %d", got, tt.idx)
			}
		})
	}
}
