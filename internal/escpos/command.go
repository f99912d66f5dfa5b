// internal/escpos/command.go
package escpos

// Commands contains the ESC/POS command definitions used by receipts and drawers
var Commands = struct {
	Initialize    []byte
	StatusRequest []byte

	BoldOn  []byte
	BoldOff []byte
	Reset   []byte

	SizeNormal       []byte
	SizeDoubleWidth  []byte
	SizeDoubleHeight []byte
	SizeDoubleBoth   []byte

	AlignLeft   []byte
	AlignCenter []byte
	AlignRight  []byte

	SelectCharset []byte // + table byte

	LineFeed  []byte
	FeedLines []byte // + line count byte

	CutFull    []byte
	CutPartial []byte

	DrawerPulse []byte
}{
	Initialize:    []byte{0x1B, 0x40},       // ESC @
	StatusRequest: []byte{0x10, 0x04, 0x01}, // DLE EOT 1

	BoldOn:  []byte{0x1B, 0x45, 0x01}, // ESC E 1
	BoldOff: []byte{0x1B, 0x45, 0x00}, // ESC E 0
	Reset:   []byte{0x1B, 0x21, 0x00}, // ESC ! 0

	SizeNormal:       []byte{0x1D, 0x21, 0x00}, // GS ! 0
	SizeDoubleWidth:  []byte{0x1D, 0x21, 0x10}, // GS ! 16
	SizeDoubleHeight: []byte{0x1D, 0x21, 0x01}, // GS ! 1
	SizeDoubleBoth:   []byte{0x1D, 0x21, 0x11}, // GS ! 17

	AlignLeft:   []byte{0x1B, 0x61, 0x00}, // ESC a 0
	AlignCenter: []byte{0x1B, 0x61, 0x01}, // ESC a 1
	AlignRight:  []byte{0x1B, 0x61, 0x02}, // ESC a 2

	SelectCharset: []byte{0x1B, 0x74}, // ESC t n

	LineFeed:  []byte{0x0A},       // LF
	FeedLines: []byte{0x1B, 0x64}, // ESC d n

	CutFull:    []byte{0x1D, 0x56, 0x00}, // GS V 0
	CutPartial: []byte{0x1D, 0x56, 0x01}, // GS V 1

	// ESC p m t1 t2: pin 2, 25*2ms on, 250*2ms off
	DrawerPulse: []byte{0x1B, 0x70, 0x00, 0x19, 0xFA},
}

// DrawerKick returns a copy of the 5-byte drawer pulse
func DrawerKick() []byte {
	return append([]byte(nil), Commands.DrawerPulse...)
}
