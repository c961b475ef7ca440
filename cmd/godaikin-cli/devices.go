package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/joshp123/godaikin/internal/cloud"
)

func devicesCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("devices", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args)
	out := outputMode{json: *jsonOut}

	client := cliClient(ctx)
	devices, err := client.Devices(ctx)
	if err != nil {
		fatal("list devices", err)
	}

	if out.json {
		out.printJSON(devices)
		return
	}
	rows := [][]string{{"ID", "NAME", "MODE", "FAN", "ROOM", "TARGET", "POWER"}}
	for _, dev := range devices {
		st := dev.Shadow
		rows = append(rows, []string{
			string(dev.UniqueID),
			dev.Name,
			st.HVACMode(),
			st.FanMode(),
			fmt.Sprintf("%.1f°C", st.RoomTempC),
			fmt.Sprintf("%.1f°C", st.TargetC),
			fmt.Sprintf("%.0fW", st.PowerW),
		})
	}
	out.table(rows)
}

func statusCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	device := flags.String("device", "", "device id")
	jsonOut := flags.Bool("json", false, "print JSON")
	_ = flags.Parse(args)
	out := outputMode{json: *jsonOut}

	if *device == "" {
		fatal("status", fmt.Errorf("missing -device"))
	}

	client := cliClient(ctx)
	devices, err := client.Devices(ctx)
	if err != nil {
		fatal("status", err)
	}

	for _, dev := range devices {
		if dev.UniqueID != cloud.DeviceID(*device) {
			continue
		}
		if out.json {
			out.printJSON(dev)
			return
		}
		st := dev.Shadow
		fmt.Printf("id: %s\n", dev.UniqueID)
		fmt.Printf("name: %s\n", dev.Name)
		fmt.Printf("group: %s\n", dev.Group)
		fmt.Printf("online: %t\n", dev.Online())
		fmt.Printf("mode: %s\n", st.HVACMode())
		fmt.Printf("fan: %s\n", st.FanMode())
		fmt.Printf("swing: %s\n", st.SwingMode())
		fmt.Printf("horizontal swing: %s\n", st.HorizontalSwingMode())
		fmt.Printf("preset: %s\n", st.Preset())
		fmt.Printf("target: %.1f°C\n", st.TargetC)
		fmt.Printf("room: %.1f°C (%.0f%% rh)\n", st.RoomTempC, st.HumidityPct)
		fmt.Printf("outdoor: %.1f°C\n", st.OutdoorTempC)
		fmt.Printf("coil: %.1f°C\n", st.CoilTempC)
		fmt.Printf("power: %.0fW\n", st.PowerW)
		fmt.Printf("led: %t\n", st.LEDOn())
		if st.ErrCode != 0 {
			fmt.Printf("error code: %d\n", st.ErrCode)
		}
		return
	}
	fatal("status", fmt.Errorf("device %q not found", *device))
}
