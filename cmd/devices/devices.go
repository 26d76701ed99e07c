// Package devices implements the command that lists available audio
// capture devices.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/frozo/ambientscribe/internal/capture"
)

// Command creates the device listing command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices()
		},
	}
}

func listDevices() error {
	devices, err := capture.ListCaptureDevices()
	if err != nil {
		return fmt.Errorf("error enumerating capture devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No capture devices found")
		return nil
	}

	fmt.Println("Available capture devices:")
	for i, d := range devices {
		fmt.Printf("  %d: %s\n", i, d.Name)
	}
	return nil
}
