package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/piper-provision/internal/platform"
)

func newPlatformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Print the resolved host platform and artifact tags",
		RunE: func(_ *cobra.Command, _ []string) error {
			var p platform.Platform
			if m := activeCfg.Platform.Machine; m != "" {
				p = platform.Resolve(m)
			} else {
				p = platform.Detect()
			}

			fmt.Printf("machine: %s\n", p.Machine)
			fmt.Printf("arch: %s\n", p.Tag())
			fmt.Printf("uname alias: %s\n", p.UnameTag())
			if !p.Supported() {
				fmt.Println("supported: no")
				if !activeCfg.Platform.FailOnUnsupported {
					fmt.Printf("fallback tag: %s\n", activeCfg.Platform.FallbackTag)
				}
			} else {
				fmt.Println("supported: yes")
			}
			return nil
		},
	}
}
