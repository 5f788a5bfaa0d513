package usbid

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the usual locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database maps vendor and product IDs to names.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string
	products map[uint32]string // VID<<16 | PID
	paths    []string
	loaded   bool
}

// New returns an empty database that loads from paths, or from DefaultPaths
// when none are given.
func New(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first readable path. Later calls are no-ops. If no path
// could be opened the error wraps fs.ErrNotExist and lookups return "".
func (db *Database) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return nil
	}
	db.loaded = true

	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		return db.parse(f)
	}
	return fmt.Errorf("usb.ids: %w", fs.ErrNotExist)
}

// Parse adds the entries read from r.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.loaded = true
	return db.parse(r)
}

func (db *Database) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	var vid uint16
	inVendor := false

	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !inVendor {
				continue
			}
			if id, name, ok := splitEntry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		// Class, HID and language sections follow the vendor list with a
		// keyword prefix; none of them parse as a hex ID.
		id, name, ok := splitEntry(line)
		inVendor = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
	return sc.Err()
}

// splitEntry splits "xxxx  Name".
func splitEntry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(s[5:], " ")
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// Vendor returns the vendor name for vid.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name for vid:pid.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe formats vid:pid with whatever names are known, e.g.
// "0483:5740 STMicroelectronics Virtual COM Port".
func (db *Database) Describe(vid, pid uint16) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04x:%04x", vid, pid)
	if v := db.Vendor(vid); v != "" {
		b.WriteString(" " + v)
	}
	if p := db.Product(vid, pid); p != "" {
		b.WriteString(" " + p)
	}
	return b.String()
}

// Loaded reports whether Load or Parse has run.
func (db *Database) Loaded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.loaded
}

// Len returns the number of vendors and products.
func (db *Database) Len() (vendors, products int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}
