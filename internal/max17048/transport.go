package max17048

import (
	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers"
)

// Transport moves bytes between the driver and the chip.
//
// Errors are returned to the caller of the driver unmodified.
type Transport interface {
	// WriteRegister addresses reg and writes data after it. When stop is
	// false the bus is kept for a repeated-start read.
	WriteRegister(addr uint16, reg byte, data []byte, stop bool) error
	// ReadBytes reads n bytes from the device.
	ReadBytes(addr uint16, n int) ([]byte, error)
}

// TxTransport adapts a bus exposing combined write/read transactions, such as
// a periph i2c.Bus or a TinyGo drivers.I2C.
//
// A write without stop is held back and sent in the same Tx as the following
// read, so the register pointer write and the read share one repeated start.
type TxTransport struct {
	bus drivers.I2C

	held     bool
	heldAddr uint16
	heldW    []byte
}

// NewTransport returns a Transport over bus.
func NewTransport(bus drivers.I2C) *TxTransport {
	return &TxTransport{bus: bus}
}

// WriteRegister implements Transport.
func (t *TxTransport) WriteRegister(addr uint16, reg byte, data []byte, stop bool) error {
	if err := t.flush(); err != nil {
		return err
	}
	w := make([]byte, 0, 1+len(data))
	w = append(w, reg)
	w = append(w, data...)
	if !stop {
		t.held, t.heldAddr, t.heldW = true, addr, w
		return nil
	}
	return t.bus.Tx(addr, w, nil)
}

// ReadBytes implements Transport.
func (t *TxTransport) ReadBytes(addr uint16, n int) ([]byte, error) {
	var w []byte
	if t.held && t.heldAddr == addr {
		w = t.heldW
		t.reset()
	} else if err := t.flush(); err != nil {
		return nil, err
	}
	r := make([]byte, n)
	if err := t.bus.Tx(addr, w, r); err != nil {
		return nil, err
	}
	return r, nil
}

// flush sends a held write that no read claimed.
func (t *TxTransport) flush() error {
	if !t.held {
		return nil
	}
	addr, w := t.heldAddr, t.heldW
	t.reset()
	return t.bus.Tx(addr, w, nil)
}

func (t *TxTransport) reset() {
	t.held, t.heldAddr, t.heldW = false, 0, nil
}

var (
	_ Transport   = &TxTransport{}
	_ drivers.I2C = i2c.Bus(nil)
)
