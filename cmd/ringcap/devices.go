package main

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// runDevices prints the available capture devices.
func runDevices() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	fmt.Println("Available capture devices:")
	for i := range infos {
		marker := " "
		if infos[i].IsDefault == 1 {
			marker = "*"
		}
		fmt.Printf("%s %d: %s\n", marker, i, infos[i].Name())
	}
	return nil
}

// selectDevice resolves the configured device name to a device ID, leaving
// the config untouched for the system default.
func selectDevice(ctx *malgo.AllocatedContext, name string, config *malgo.DeviceConfig) error {
	if name == "" || name == "default" {
		return nil
	}
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == name {
			config.Capture.DeviceID = infos[i].ID.Pointer()
			return nil
		}
	}
	return fmt.Errorf("capture device %q not found", name)
}
