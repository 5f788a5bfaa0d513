// Package script runs line-oriented USB scenarios against a controller on
// a simulated target.
//
// A scenario plays the host side of the bus and checks the device side:
//
//	init
//	setup ep 0 [0x00, 0x05, 0x07, 0, 0, 0, 0, 0]
//	in ep 0 => []
//	expect address 7
//	write "hi"
//	flush
//	in ep 5 => "hi"
//	out ep 4 [1, 2, 3]
//	read 3 => "\x01\x02\x03"
//
// Commands:
//
//	init | disable                      controller lifecycle
//	reset | suspend | wakeup            bus events
//	setup ep N [bytes]                  SETUP packet (up to 8 bytes, zero padded)
//	out ep N "text"|[bytes] [=> nak|stall]
//	in ep N [=> "text"|[bytes]|nak|stall]
//	write "text" | flush | read N [=> "text"]
//	expect state NAME
//	expect [not] pending ep N
//	expect stat ep N rx|tx NAME
//	expect address N
//
// Endpoints are named by address, not slot. EP0 requests are answered by
// a [Responder].
package script
