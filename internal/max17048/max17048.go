// Package max17048 controls a Maxim MAX17048/MAX17049 single-cell Li-ion
// fuel gauge over I²C.
//
// The driver only encodes and decodes the chip's register map. Bus signalling
// is delegated to a Transport, see NewTransport for an adapter over periph and
// TinyGo buses.
//
// A Dev is not safe for concurrent use. The CONFIG mutators read the register
// and then write it back in a second transaction; a concurrent writer in
// between would have its change overwritten. Guard a shared Dev with a mutex
// held across the whole call.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/MAX17048-MAX17049.pdf
package max17048

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Addr is the fixed 7-bit I²C address of the MAX1704x.
const Addr uint16 = 0x36

// Register map.
const (
	RegVCell   byte = 0x02 // R
	RegSOC     byte = 0x04 // R
	RegMode    byte = 0x06 // W
	RegVersion byte = 0x08 // R
	RegConfig  byte = 0x0C // R/W
	RegCommand byte = 0xFE // W
)

var (
	cmdQuickStart = []byte{0x40, 0x00}
	cmdReset      = []byte{0x54, 0x00}
)

var (
	// ErrShortRead is returned when the transport hands back fewer bytes than
	// requested.
	ErrShortRead = errors.New("max17048: short read")

	// ErrInvalidVariant is returned by New for an unknown chip variant.
	ErrInvalidVariant = errors.New("max17048: invalid variant")
)

// Variant selects the chip flavour, which determines the VCELL resolution.
type Variant uint8

const (
	// MAX17048 measures 0-5V with 1.25mV/LSB (1S cell).
	MAX17048 Variant = 1
	// MAX17049 measures 0-10V with 2.5mV/LSB (2S cells).
	MAX17049 Variant = 2
)

// Scale is the multiplier applied to the 1.25mV base resolution.
func (v Variant) Scale() int {
	return int(v)
}

func (v Variant) String() string {
	switch v {
	case MAX17048:
		return "MAX17048"
	case MAX17049:
		return "MAX17049"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// Opts holds the construction time configuration.
type Opts struct {
	// Addr defaults to max17048.Addr when zero.
	Addr    uint16
	Variant Variant
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Addr:    Addr,
	Variant: MAX17048,
}

// Measurement is a single voltage and state-of-charge sample.
type Measurement struct {
	Voltage physic.ElectricPotential
	// SOC is the relative state of charge in percent, resolution 1/256%.
	SOC float64
}

func (m Measurement) String() string {
	return fmt.Sprintf("%s %.2f%%", m.Voltage, m.SOC)
}

// Dev is a handle to a MAX1704x fuel gauge.
type Dev struct {
	t       Transport
	addr    uint16
	variant Variant
}

// New returns a handle to a fuel gauge reachable through t.
//
// The chip is not touched; the first transaction happens on the first call.
func New(t Transport, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	variant := opts.Variant
	if variant == 0 {
		variant = MAX17048
	}
	if variant != MAX17048 && variant != MAX17049 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVariant, uint8(variant))
	}
	addr := opts.Addr
	if addr == 0 {
		addr = Addr
	}
	return &Dev{t: t, addr: addr, variant: variant}, nil
}

// NewI2C returns a handle to a fuel gauge on a periph I²C bus.
func NewI2C(bus i2c.Bus, opts *Opts) (*Dev, error) {
	return New(NewTransport(bus), opts)
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("%s{addr:0x%02X}", d.variant, d.addr)
}

// Halt implements conn.Resource. The gauge has nothing to stop.
func (d *Dev) Halt() error {
	return nil
}

// CellVoltage returns the cell voltage in volts.
func (d *Dev) CellVoltage() (float64, error) {
	code, err := d.vcellCode()
	if err != nil {
		return 0, err
	}
	return float64(code) * 0.00125 * float64(d.variant.Scale()), nil
}

// StateOfCharge returns the relative state of charge in percent.
func (d *Dev) StateOfCharge() (float64, error) {
	b, err := d.readRegister(RegSOC, 2)
	if err != nil {
		return 0, err
	}
	return float64(b[0]) + float64(b[1])/256, nil
}

// Measure reads VCELL and SOC.
func (d *Dev) Measure() (Measurement, error) {
	var m Measurement
	code, err := d.vcellCode()
	if err != nil {
		return m, err
	}
	m.Voltage = physic.ElectricPotential(code) * 1250 * physic.MicroVolt * physic.ElectricPotential(d.variant.Scale())
	if m.SOC, err = d.StateOfCharge(); err != nil {
		return m, err
	}
	return m, nil
}

// GetStatus returns the cell voltage in volts and the state of charge in
// percent.
func (d *Dev) GetStatus() (voltage float64, soc float64, err error) {
	if voltage, err = d.CellVoltage(); err != nil {
		return 0, 0, err
	}
	if soc, err = d.StateOfCharge(); err != nil {
		return 0, 0, err
	}
	return voltage, soc, nil
}

// Version returns the production version word of the IC.
func (d *Dev) Version() (uint16, error) {
	b, err := d.readRegister(RegVersion, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// Config reads and decodes the CONFIG register.
func (d *Dev) Config() (ConfigRegister, error) {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return ConfigRegister{}, err
	}
	return DecodeConfig([2]byte{b[0], b[1]}), nil
}

// Compensation returns RCOMP, the MSB of CONFIG.
func (d *Dev) Compensation() (uint8, error) {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// StatusByte returns the LSB of CONFIG: sleep bit, alert flag and the encoded
// alert threshold.
func (d *Dev) StatusByte() (uint8, error) {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return 0, err
	}
	return b[1], nil
}

// AlertThreshold returns the SOC percentage in [1, 32] below which the chip
// raises its alert.
func (d *Dev) AlertThreshold() (uint8, error) {
	status, err := d.StatusByte()
	if err != nil {
		return 0, err
	}
	return DecodeThreshold(status), nil
}

// IsSleeping reports whether the sleep bit is set.
func (d *Dev) IsSleeping() (bool, error) {
	status, err := d.StatusByte()
	if err != nil {
		return false, err
	}
	return status&cfgSleep != 0, nil
}

// SetCompensation replaces RCOMP and leaves the status byte untouched.
func (d *Dev) SetCompensation(value uint8) error {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return err
	}
	return d.writeConfig(value, b[1])
}

// SetAlertThreshold sets the low SOC alert threshold in percent. Values
// outside [1, 32] are clamped.
//
// RCOMP and the sleep bit are kept. The alert flag and the other status bits
// are cleared.
func (d *Dev) SetAlertThreshold(percent uint8) error {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return err
	}
	return d.writeConfig(b[0], b[1]&cfgSleep|EncodeThreshold(percent))
}

// ClearAlert clears the alert flag after the chip raised an interrupt.
func (d *Dev) ClearAlert() error {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return err
	}
	return d.writeConfig(b[0], b[1]&^cfgAlert)
}

// Sleep halts all IC operations.
//
// The threshold is decoded and encoded again before writing, which drops the
// alert flag and any other stray status bits.
func (d *Dev) Sleep() error {
	return d.setSleep(true)
}

// Wake resumes IC operations. See Sleep for the status byte handling.
func (d *Dev) Wake() error {
	return d.setSleep(false)
}

// QuickStart restarts the fuel-gauge estimation, typically after a battery
// swap.
func (d *Dev) QuickStart() error {
	return d.t.WriteRegister(d.addr, RegMode, cmdQuickStart, true)
}

// Reset forces a full power-on reset of the chip. Volatile configuration is
// lost.
func (d *Dev) Reset() error {
	return d.t.WriteRegister(d.addr, RegCommand, cmdReset, true)
}

func (d *Dev) setSleep(on bool) error {
	b, err := d.readRegister(RegConfig, 2)
	if err != nil {
		return err
	}
	status := EncodeThreshold(DecodeThreshold(b[1]))
	if on {
		status |= cfgSleep
	} else {
		status &^= cfgSleep
	}
	return d.writeConfig(b[0], status)
}

// vcellCode returns the 12-bit ADC code held in the top of VCELL.
func (d *Dev) vcellCode() (uint16, error) {
	b, err := d.readRegister(RegVCell, 2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<4 | uint16(b[1])>>4, nil
}

func (d *Dev) readRegister(reg byte, n int) ([]byte, error) {
	if err := d.t.WriteRegister(d.addr, reg, nil, false); err != nil {
		return nil, err
	}
	b, err := d.t.ReadBytes(d.addr, n)
	if err != nil {
		return nil, err
	}
	if len(b) < n {
		return nil, fmt.Errorf("%w: register 0x%02X: got %d bytes, want %d", ErrShortRead, reg, len(b), n)
	}
	return b, nil
}

func (d *Dev) writeConfig(msb, lsb byte) error {
	return d.t.WriteRegister(d.addr, RegConfig, []byte{msb, lsb}, true)
}

var _ conn.Resource = &Dev{}
