package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "connect and print the device profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			conn, err := a.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			p := conn.Profile()
			fmt.Printf("uuid:     %s\n", p.UUID)
			fmt.Printf("serial:   %s\n", p.Serial)
			fmt.Printf("version:  %s\n", p.Version)
			fmt.Printf("model:    %s\n", p.Model)
			fmt.Printf("nickname: %s\n", p.Nickname)
			return nil
		},
	}
}
