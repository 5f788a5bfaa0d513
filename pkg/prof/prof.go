package prof

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/ardnew/f0usb/pkg"
)

// Profile names a runtime/pprof profile.
type Profile string

// Snapshot profiles. CPU profiles stream for the life of a Session instead.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// String returns the profile name.
func (p Profile) String() string { return string(p) }

// ErrInvalidProfile indicates a profile that cannot be snapshotted.
var ErrInvalidProfile = errors.New("invalid profile")

// Only one CPU profile can run per process.
var cpuMutex sync.Mutex

// Session collects the profiles requested for one command run.
type Session struct {
	cpu  *os.File
	heap string
}

// Start begins CPU profiling into cpuPath when it is non-empty. When heapPath
// is non-empty a heap snapshot is written there by Stop. Starting a second
// CPU profile fails with pkg.ErrAlreadyRunning.
func Start(cpuPath, heapPath string) (*Session, error) {
	s := &Session{heap: heapPath}
	if cpuPath == "" {
		return s, nil
	}

	if !cpuMutex.TryLock() {
		return nil, fmt.Errorf("cpu profile: %w", pkg.ErrAlreadyRunning)
	}
	f, err := os.Create(cpuPath)
	if err != nil {
		cpuMutex.Unlock()
		return nil, fmt.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		cpuMutex.Unlock()
		return nil, fmt.Errorf("cpu profile: %w: %w", pkg.ErrAlreadyRunning, err)
	}
	s.cpu = f
	return s, nil
}

// Stop ends CPU profiling and writes the heap snapshot. It is safe to call
// more than once and on a nil Session.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
		s.cpu = nil
		cpuMutex.Unlock()
	}
	if s.heap != "" {
		runtime.GC()
		errs = append(errs, WriteFile(ProfileHeap, s.heap))
		s.heap = ""
	}
	return errors.Join(errs...)
}

// WriteFile writes a snapshot of profile to path.
func WriteFile(profile Profile, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s profile: %w", profile, err)
	}
	defer f.Close()
	return WriteTo(profile, f, 0)
}

// WriteTo writes a snapshot of profile to w. Debug level 0 is the binary
// format read by go tool pprof; 1 is text.
func WriteTo(profile Profile, w io.Writer, debug int) error {
	if profile == ProfileCPU {
		return fmt.Errorf("%s profile is not a snapshot: %w", profile, ErrInvalidProfile)
	}
	p := pprof.Lookup(string(profile))
	if p == nil {
		return fmt.Errorf("%s: %w", profile, ErrInvalidProfile)
	}
	return p.WriteTo(w, debug)
}
