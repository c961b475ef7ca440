package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/joshp123/godaikin/internal/cloud"
)

// setCmd issues desired-state patches. The service merges them
// asynchronously, so "ok" means accepted upstream, not applied on the unit.
func setCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("set", flag.ExitOnError)
	device := flags.String("device", "", "device id")
	power := flags.String("power", "", "on or off")
	mode := flags.String("mode", "", "cool, dry or fan_only")
	temp := flags.Float64("temp", 0, "target temperature in celsius")
	fan := flags.String("fan", "", "auto, low, medium or high")
	swing := flags.String("swing", "", "off, step_1..step_5 or auto")
	hswing := flags.String("hswing", "", "off, step_1..step_5 or auto")
	preset := flags.String("preset", "", "none, comfort, eco, boost or sleep")
	led := flags.String("led", "", "on or off")
	_ = flags.Parse(args)

	if *device == "" {
		fatal("set", fmt.Errorf("missing -device"))
	}

	client := cliClient(ctx)
	devices, err := client.Devices(ctx)
	if err != nil {
		fatal("set", err)
	}
	var target cloud.Target
	found := false
	for _, dev := range devices {
		if dev.UniqueID == cloud.DeviceID(*device) {
			target = dev.Target()
			found = true
			break
		}
	}
	if !found {
		fatal("set", fmt.Errorf("device %q not found", *device))
	}

	issued := 0
	apply := func(what string, fn func() error) {
		issued++
		if err := fn(); err != nil {
			fatal("set "+what, err)
		}
		fmt.Printf("ok: %s\n", what)
	}

	if *power != "" {
		on, err := parseOnOff(*power)
		if err != nil {
			fatal("set power", err)
		}
		if on {
			apply("power on", func() error { return client.TurnOn(ctx, target) })
		} else {
			apply("power off", func() error { return client.TurnOff(ctx, target) })
		}
	}
	if *mode != "" {
		m, err := cloud.ParseMode(*mode)
		if err != nil {
			fatal("set mode", err)
		}
		apply("mode "+*mode, func() error { return client.SetMode(ctx, target, m) })
	}
	if *temp != 0 {
		apply(fmt.Sprintf("temperature %.1f", *temp), func() error {
			return client.SetTemperature(ctx, target, *temp)
		})
	}
	if *fan != "" {
		f, err := cloud.ParseFanSpeed(*fan)
		if err != nil {
			fatal("set fan", err)
		}
		apply("fan "+*fan, func() error { return client.SetFanSpeed(ctx, target, f) })
	}
	if *swing != "" {
		s, err := cloud.ParseSwing(*swing)
		if err != nil {
			fatal("set swing", err)
		}
		apply("swing "+*swing, func() error { return client.SetSwing(ctx, target, s) })
	}
	if *hswing != "" {
		s, err := cloud.ParseSwing(*hswing)
		if err != nil {
			fatal("set hswing", err)
		}
		apply("hswing "+*hswing, func() error { return client.SetHorizontalSwing(ctx, target, s) })
	}
	if *preset != "" {
		p, err := cloud.ParsePreset(*preset)
		if err != nil {
			fatal("set preset", err)
		}
		apply("preset "+*preset, func() error { return client.SetPreset(ctx, target, p) })
	}
	if *led != "" {
		on, err := parseOnOff(*led)
		if err != nil {
			fatal("set led", err)
		}
		apply("led "+*led, func() error { return client.SetDisplayLED(ctx, target, on) })
	}

	if issued == 0 {
		fatal("set", fmt.Errorf("nothing to do, pass at least one of -power -mode -temp -fan -swing -hswing -preset -led"))
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("want on or off, got %q", s)
	}
}
