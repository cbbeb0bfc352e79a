package main

import (
	"log"

	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"fuelgauge/internal/max17048"
	"fuelgauge/internal/server"
)

func main() {
	busName := pflag.String("bus", "", "I2C bus name or number, empty for the first available")
	port := pflag.Int("port", 3000, "HTTP listen port")
	variant := pflag.String("variant", "MAX17048", "chip variant: MAX17048 (1S) or MAX17049 (2S)")
	rcomp := pflag.Int("rcomp", -1, "RCOMP compensation byte to program at startup, -1 to keep")
	threshold := pflag.Int("alert-threshold", 0, "low SOC alert threshold in percent (1-32), 0 to keep")
	quickStart := pflag.Bool("quick-start", false, "restart fuel-gauge estimation at startup")
	pflag.Parse()

	log.Println("Starting fuelgauged...")

	opts := max17048.DefaultOpts
	switch *variant {
	case "MAX17048":
		opts.Variant = max17048.MAX17048
	case "MAX17049":
		opts.Variant = max17048.MAX17049
	default:
		log.Fatalf("unknown variant %q", *variant)
	}

	if *rcomp > 0xFF {
		log.Fatalf("rcomp %d out of range", *rcomp)
	}

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	bus, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatalf("failed to open I2C: %v", err)
	}
	defer bus.Close()

	mx, err := max17048.NewI2C(bus, &opts)
	if err != nil {
		log.Fatalf("Failed to init MAX17048: %v", err)
	}

	if v, err := mx.Version(); err != nil {
		log.Printf("Failed to read MAX17048 version: %v", err)
	} else {
		log.Printf("Hardware Initialized: %s on %s, version 0x%04X", mx, bus, v)
	}

	if *rcomp >= 0 {
		if err := mx.SetCompensation(uint8(*rcomp)); err != nil {
			log.Printf("Failed to set RCOMP: %v", err)
		}
	}
	if *threshold > 0 {
		if err := mx.SetAlertThreshold(uint8(min(*threshold, 255))); err != nil {
			log.Printf("Failed to set alert threshold: %v", err)
		}
	}
	if *quickStart {
		if err := mx.QuickStart(); err != nil {
			log.Printf("Failed to quick-start MAX17048: %v", err)
		}
	}
	if cfg, err := mx.Config(); err == nil {
		log.Printf("MAX17048 config: %s", cfg)
	}

	if err := server.Run(*port, mx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
