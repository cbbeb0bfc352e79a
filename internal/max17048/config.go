package max17048

import "fmt"

// CONFIG LSB bits.
const (
	cfgSleep     byte = 0x80
	cfgAlert     byte = 0x20
	cfgThreshold byte = 0x1F
)

// Alert threshold bounds in percent.
const (
	MinAlertThreshold = 1
	MaxAlertThreshold = 32
)

// ConfigRegister is the decoded CONFIG register.
type ConfigRegister struct {
	// Compensation is RCOMP, tuned per battery chemistry and temperature.
	Compensation uint8
	Sleep        bool
	// AlertFlag is set by the chip when SOC falls below AlertThreshold and
	// stays set until cleared by the host.
	AlertFlag bool
	// AlertThreshold in percent, [1, 32].
	AlertThreshold uint8
}

// DecodeConfig splits the two CONFIG bytes as read from the wire.
func DecodeConfig(b [2]byte) ConfigRegister {
	return ConfigRegister{
		Compensation:   b[0],
		Sleep:          b[1]&cfgSleep != 0,
		AlertFlag:      b[1]&cfgAlert != 0,
		AlertThreshold: DecodeThreshold(b[1]),
	}
}

// Bytes packs c in wire order. Bit 6 of the LSB is always zero.
func (c ConfigRegister) Bytes() [2]byte {
	status := EncodeThreshold(c.AlertThreshold)
	if c.Sleep {
		status |= cfgSleep
	}
	if c.AlertFlag {
		status |= cfgAlert
	}
	return [2]byte{c.Compensation, status}
}

func (c ConfigRegister) String() string {
	return fmt.Sprintf("rcomp=0x%02X sleep=%t alert=%t athd=%d%%", c.Compensation, c.Sleep, c.AlertFlag, c.AlertThreshold)
}

// EncodeThreshold returns the 5-bit two's complement form of percent, clamped
// to [1, 32].
func EncodeThreshold(percent uint8) byte {
	if percent < MinAlertThreshold {
		percent = MinAlertThreshold
	} else if percent > MaxAlertThreshold {
		percent = MaxAlertThreshold
	}
	return -percent & cfgThreshold
}

// DecodeThreshold extracts the alert threshold in percent from the CONFIG
// LSB.
func DecodeThreshold(status byte) uint8 {
	return ^status&cfgThreshold + 1
}
