package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonyccd/rarsms/internal/aprs"
)

func newPasscodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passcode <callsign>",
		Short: "Compute the APRS-IS passcode for a callsign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callsign := strings.ToUpper(args[0])
			base, _ := aprs.SplitSSID(callsign)
			if !aprs.ValidCallsign(base) {
				return fmt.Errorf("invalid callsign %q", callsign)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", aprs.Passcode(callsign))
			return nil
		},
	}
}
