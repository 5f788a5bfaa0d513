// Package prof wraps runtime/pprof for the command line tools.
//
// A Session streams a CPU profile while a command runs and can leave a heap
// snapshot behind when it stops:
//
//	s, err := prof.Start("cpu.prof", "heap.prof")
//	if err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Other snapshots are available through [WriteTo] and [WriteFile].
package prof
