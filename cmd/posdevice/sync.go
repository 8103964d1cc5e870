package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send every unsynchronised order to the server",
		Long: `Send every unsynchronised order to the server in one batch.

Orders the server accepted become Synchronized. Orders it rejected stay
Offline and "list" shows the reason. When the server cannot be reached
nothing changes locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := rootOpts.client(s.buffer.DeviceID())
			if err != nil {
				return err
			}
			report, err := s.buffer.Flush(cmd.Context(), c)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
				fmt.Fprintln(w, report)
			})
		},
	}
}

func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Adopt the server's copies of the tenant's orders",
		Long: `Adopt the server's copies of the tenant's orders. Local orders that
are not synchronised yet and that the server copy does not supersede are
kept, so the next sync can still send them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := rootOpts.client(s.buffer.DeviceID())
			if err != nil {
				return err
			}
			orders, err := c.ListOrders(cmd.Context())
			if err != nil {
				return err
			}
			n, err := s.buffer.Adopt(cmd.Context(), orders)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), map[string]int{"received": len(orders), "adopted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "received=%d adopted=%d\n", len(orders), n)
			})
		},
	}
}

func jsonValid(s string) bool {
	return json.Valid([]byte(s))
}
