package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yeremiapane/omnipos/device"
	"github.com/yeremiapane/omnipos/utils"
)

// RootOptions holds the flags every command shares.
type RootOptions struct {
	DBPath  string
	Server  string
	Token   string
	Tenant  string
	Staff   string
	Format  string
	Verbose bool
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "posdevice",
		Short: "Offline order buffer of one OmniPOS till",
		Long: `posdevice keeps the orders of one till in a local SQLite file and
synchronises them with the OmniPOS server whenever it is reachable.

Orders can be created, moved through the workflow and amended without a
connection; "sync" sends every unsynchronised order and "pull" adopts the
server's copies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				utils.InfoLogger.SetOutput(cmd.ErrOrStderr())
				utils.ErrorLogger.SetOutput(cmd.ErrOrStderr())
			} else {
				utils.Silence()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", envOr("POSDEVICE_DB", "posdevice.db"), "path of the local order buffer")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("OMNIPOS_SERVER", "http://localhost:8080"), "base URL of the OmniPOS server")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("OMNIPOS_TOKEN"), "bearer token of the operator")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", os.Getenv("OMNIPOS_TENANT"), "tenant the orders belong to")
	cmd.PersistentFlags().StringVar(&opts.Staff, "staff", os.Getenv("OMNIPOS_STAFF"), "staff id recorded on new orders")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(NewIDCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAmendCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// session is an open buffer and the store behind it.
type session struct {
	store  *device.Store
	buffer *device.Buffer
}

func (s *session) Close() error { return s.store.Close() }

func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	if opts.Tenant == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	store, err := device.Open(opts.DBPath)
	if err != nil {
		return nil, err
	}
	buf, err := device.LoadBuffer(ctx, store, opts.Tenant)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	buf.SetStaff(opts.Staff)
	return &session{store: store, buffer: buf}, nil
}

func (opts *RootOptions) client(deviceID string) (*device.HTTPClient, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("--token is required to reach the server")
	}
	c := device.NewHTTPClient(opts.Server, opts.Token)
	c.DeviceID = deviceID
	return c, nil
}

// emit writes v as JSON, or text via the callback, depending on --format.
func (opts *RootOptions) emit(w io.Writer, v interface{}, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
