package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// chunkSize keeps each binary frame comfortably under the 16-bit frame
// length limit.
const chunkSize = 4096

func pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file>",
		Short: "open a channel and stream a file as acknowledged binary frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := newApp()
			if err != nil {
				return err
			}
			conn, err := a.connect()
			if err != nil {
				return err
			}
			defer conn.Close()

			ch, err := conn.OpenChannel(a.cfg.Type, a.cfg.Timeout)
			if err != nil {
				return err
			}
			defer ch.Close()

			buf := make([]byte, chunkSize)
			var sent int
			for {
				n, err := f.Read(buf)
				if n > 0 {
					if err := ch.SendBinary(buf[:n], a.cfg.Timeout); err != nil {
						return fmt.Errorf("after %d bytes: %w", sent, err)
					}
					sent += n
				}
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
			}
			fmt.Printf("pushed %d bytes\n", sent)
			return nil
		},
	}
}
