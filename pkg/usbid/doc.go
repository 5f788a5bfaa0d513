// Package usbid looks up vendor and product names in the usb.ids database
// distributed with usbutils and hwdata.
//
//	db := usbid.New()
//	if err := db.Load(); err != nil {
//		// lookups return "" but remain safe
//	}
//	fmt.Println(db.Describe(0x0483, 0x5740))
//
// All methods are safe for concurrent use.
package usbid
