package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/uwave/internal/payload"
)

type decodeOptions struct {
	name    string
	battery bool
	legacy  bool
}

func newDecodeCmd() *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a captured payload",
		Long: `Decode a measurement notification or battery read captured from a device.

Bytes may be separated by spaces, colons or dashes. The device name selects
the scaling variant: names starting with "07" report one extra decimal place.`,
		Example: `  uwave decode "aa bb cc 64 00 00"
  uwave decode 000000e80300 --name 07-sensor
  uwave decode 5a --battery`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Device name used to pick the scaling variant")
	cmd.Flags().BoolVar(&opts.battery, "battery", false, "Decode as a battery level read")
	cmd.Flags().BoolVar(&opts.legacy, "legacy", false, "Decode with the older 16-bit format")
	cmd.MarkFlagsMutuallyExclusive("battery", "legacy")
	return cmd
}

func runDecode(cmd *cobra.Command, input string, opts *decodeOptions) error {
	buf, err := parseHex(input)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	switch {
	case opts.battery:
		level, err := payload.DecodeBatteryLevel(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "battery: %d%%\n", level)
	case opts.legacy:
		v, err := payload.DecodeLegacyMeasurement(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "measurement (legacy): %g\n", v)
	default:
		v, err := payload.DecodeMeasurement(buf, opts.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "measurement: %g\n", v)
		fmt.Fprintf(out, "divisor: %g\n", 100*payload.ScaleForName(opts.name))
	}
	return nil
}

// parseHex accepts "0a0b0c", "0a 0b 0c", "0a:0b:0c", "0x0a0b0c" and similar.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", ",", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("empty payload")
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return buf, nil
}
