package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <json-record>",
		Short: "open a channel, send one object record, print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var record map[string]interface{}
			if err := json.Unmarshal([]byte(args[0]), &record); err != nil {
				return fmt.Errorf("parse record: %w", err)
			}

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

			if err := ch.SendObject(record); err != nil {
				return err
			}
			reply, err := ch.GetObject(a.cfg.Timeout)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(reply, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
