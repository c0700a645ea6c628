package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/piper-provision/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check an installed tree offline: engine binary and voice pairs",
		RunE: func(_ *cobra.Command, _ []string) error {
			catalog := catalogFromConfig(activeCfg)

			res := doctor.Run(doctor.Config{
				BinaryPath: catalog.BinaryPath(),
				VoicesDir:  catalog.VoicesDir(),
				Voices:     activeCfg.Voices.IDs,
			}, os.Stdout)

			if res.Failed() {
				return fmt.Errorf("doctor found %d problem(s)", len(res.Failures()))
			}
			fmt.Println("installation looks healthy")
			return nil
		},
	}
}
