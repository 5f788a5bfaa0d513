package script

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
)

// Script is a parsed scenario.
type Script struct {
	Commands []*Command `@@*`
}

// Command is one scenario step. Exactly one field is set.
type Command struct {
	Pos lexer.Position

	Init    bool     `  @"init"`
	Disable bool     `| @"disable"`
	Reset   bool     `| @"reset"`
	Suspend bool     `| @"suspend"`
	Wakeup  bool     `| @"wakeup"`
	Flush   bool     `| @"flush"`
	Setup   *Setup   `| @@`
	Out     *Out     `| @@`
	In      *In      `| @@`
	Write   *Write   `| @@`
	Read    *Read    `| @@`
	Expect  *Expect  `| "expect" @@`
}

// Setup sends a SETUP packet: setup ep 0 [0x80, 0x06, 0, 1, 0, 0, 18, 0]
type Setup struct {
	EP   Number   `"setup" "ep" @Number`
	Data ByteList `"[" ( @Number ( "," @Number )* )? "]"`
}

// Out sends an OUT packet: out ep 4 "text" or out ep 4 [1, 2] => nak
type Out struct {
	EP        Number  `"out" "ep" @Number`
	Data      Payload `@@`
	Handshake string  `( "=>" @( "nak" | "stall" ) )?`
}

// In requests an IN packet: in ep 5 => "text"
type In struct {
	EP   Number    `"in" "ep" @Number`
	Want *Response `( "=>" @@ )?`
}

// Write queues text on the byte stream.
type Write struct {
	Text string `"write" @String`
}

// Read takes bytes from the byte stream: read 2 => "ok"
type Read struct {
	N    Number  `"read" @Number`
	Want *string `( "=>" @String )?`
}

// Payload is quoted text or a byte list.
type Payload struct {
	Text  string   `  @String`
	Bytes ByteList `| "[" ( @Number ( "," @Number )* )? "]"`
}

// Data returns the payload bytes.
func (p *Payload) Data() []byte {
	if len(p.Bytes) > 0 {
		return p.Bytes
	}
	return []byte(p.Text)
}

// Response is the expected outcome of an IN request.
type Response struct {
	Handshake string   `  @( "nak" | "stall" )`
	Payload   *Payload `| @@`
}

// Expect asserts controller state.
type Expect struct {
	State   *ExpectState   `  @@`
	Pending *ExpectPending `| @@`
	Stat    *ExpectStat    `| @@`
	Address *ExpectAddress `| @@`
}

// ExpectState: expect state suspended
type ExpectState struct {
	Name string `"state" @Ident`
}

// ExpectPending: expect pending ep 4, expect not pending ep 4
type ExpectPending struct {
	Not bool   `@"not"?`
	EP  Number `"pending" "ep" @Number`
}

// ExpectStat: expect stat ep 4 rx valid
type ExpectStat struct {
	EP   Number `"stat" "ep" @Number`
	Dir  string `@( "rx" | "tx" )`
	Stat string `@Ident`
}

// ExpectAddress: expect address 7
type ExpectAddress struct {
	Addr Number `"address" @Number`
}

// Number is a decimal or 0x-prefixed integer.
type Number int

// Capture implements participle.Capture.
func (n *Number) Capture(values []string) error {
	v, err := strconv.ParseInt(values[0], 0, 32)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

// ByteList accumulates bracketed byte values.
type ByteList []byte

// Capture implements participle.Capture.
func (b *ByteList) Capture(values []string) error {
	for _, s := range values {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return fmt.Errorf("byte %s: %w", s, err)
		}
		*b = append(*b, byte(v))
	}
	return nil
}
