package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yeremiapane/omnipos/device"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

func NewIDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the device id used in order clocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := device.Open(opts.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.DeviceID(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string]string{"deviceId": id}, func(w io.Writer) {
				fmt.Fprintln(w, id)
			})
		},
	}
}

// CreateOptions holds the flags of create.
type CreateOptions struct {
	Table          string
	Customer       string
	Guests         int
	Notes          string
	Payment        string
	Items          []string
	DiscountType   string
	DiscountValue  string
	DiscountReason string
	ServiceCharge  string
}

func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order in the local buffer",
		Long: `Create an order in the local buffer. It starts in Placed and stays
Offline until the next sync.

Items are given as product:quantity:unit-price[:name], e.g.

  posdevice create --tenant resto --table 4 \
    --item nasgor:2:25000:Nasi Goreng --item teh:2:5000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := opts.draft()
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			o, err := s.buffer.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), o, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s %s\n", o.ID, o.Status, utils.FormatCurrency(o.FinalTotal))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "table id, empty for takeaway")
	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer name")
	cmd.Flags().IntVar(&opts.Guests, "guests", 0, "number of guests")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "kitchen notes")
	cmd.Flags().StringVar(&opts.Payment, "payment", "", "payment method")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "order line as product:quantity:unit-price[:name] (repeatable)")
	cmd.Flags().StringVar(&opts.DiscountType, "discount-type", "", "Percent or Fixed")
	cmd.Flags().StringVar(&opts.DiscountValue, "discount-value", "", "percent (0-100) or amount")
	cmd.Flags().StringVar(&opts.DiscountReason, "discount-reason", "", "why the discount was given")
	cmd.Flags().StringVar(&opts.ServiceCharge, "service-charge", "", "service charge amount")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

func (o *CreateOptions) draft() (device.Draft, error) {
	d := device.Draft{
		CustomerName:   o.Customer,
		GuestCount:     o.Guests,
		Notes:          o.Notes,
		PaymentMethod:  o.Payment,
		DiscountReason: o.DiscountReason,
	}
	if o.Table != "" {
		t := o.Table
		d.TableID = &t
	}
	for _, raw := range o.Items {
		it, err := parseItem(raw)
		if err != nil {
			return device.Draft{}, err
		}
		d.Items = append(d.Items, it)
	}

	typ, err := parseDiscountType(o.DiscountType)
	if err != nil {
		return device.Draft{}, err
	}
	d.DiscountType = typ
	if d.DiscountValue, err = parseAmount("discount-value", o.DiscountValue); err != nil {
		return device.Draft{}, err
	}
	if d.ServiceCharge, err = parseAmount("service-charge", o.ServiceCharge); err != nil {
		return device.Draft{}, err
	}
	return d, nil
}

// parseItem reads product:quantity:unit-price[:name].
func parseItem(raw string) (device.Item, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 {
		return device.Item{}, fmt.Errorf("item %q: want product:quantity:unit-price[:name]", raw)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil || qty <= 0 {
		return device.Item{}, fmt.Errorf("item %q: quantity must be a positive integer", raw)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return device.Item{}, fmt.Errorf("item %q: invalid price: %w", raw, err)
	}
	if !price.Equal(price.Truncate(2)) {
		return device.Item{}, fmt.Errorf("item %q: price has more than two decimal places", raw)
	}
	it := device.Item{ProductID: parts[0], Quantity: qty, UnitPrice: price, Name: parts[0]}
	if len(parts) == 4 && parts[3] != "" {
		it.Name = parts[3]
	}
	return it, nil
}

func parseDiscountType(s string) (models.DiscountType, error) {
	switch models.DiscountType(s) {
	case models.DiscountNone, models.DiscountPercent, models.DiscountFixed:
		return models.DiscountType(s), nil
	}
	return "", fmt.Errorf("discount type %q: want Percent or Fixed", s)
}

func parseAmount(flag, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", flag, err)
	}
	return d, nil
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var online bool

	cmd := &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Move an order to the next workflow status",
		Long: `Move an order to the next workflow status: Placed, InKitchen, Ready,
Served, Paid. Any open order can be Cancelled.

Without --online the change is made in the local buffer and sent with the
next sync. With --online it is made on the server directly.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := models.OrderStatus(args[1])
			if !to.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}

			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if online {
				c, err := rootOpts.client(s.buffer.DeviceID())
				if err != nil {
					return err
				}
				resp, err := c.ChangeStatus(cmd.Context(), args[0], to)
				if err != nil {
					return err
				}
				return rootOpts.emit(cmd.OutOrStdout(), resp, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s (server)\n", args[0], resp.WorkflowStatus)
				})
			}

			o, err := s.buffer.Transition(cmd.Context(), args[0], to)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), o, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s %s\n", o.ID, o.Status, o.SyncStatus)
			})
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "change the status on the server instead of locally")
	return cmd
}

// AmendOptions holds the flags of amend. Empty strings leave a field alone.
type AmendOptions struct {
	DiscountType   string
	DiscountValue  string
	DiscountReason string
	ServiceCharge  string
	Metadata       string
	Amendments     string
}

func NewAmendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AmendOptions{}

	cmd := &cobra.Command{
		Use:   "amend <order-id>",
		Short: "Change discount, service charge or notes blobs of an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.amendment(cmd)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			o, err := s.buffer.Amend(cmd.Context(), args[0], a)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), o, func(w io.Writer) {
				fmt.Fprintf(w, "%s discount=%s service=%s total=%s\n", o.ID,
					utils.FormatCurrency(o.Discount), utils.FormatCurrency(o.ServiceCharge), utils.FormatCurrency(o.FinalTotal))
			})
		},
	}

	cmd.Flags().StringVar(&opts.DiscountType, "discount-type", "", "Percent or Fixed")
	cmd.Flags().StringVar(&opts.DiscountValue, "discount-value", "", "percent (0-100) or amount")
	cmd.Flags().StringVar(&opts.DiscountReason, "discount-reason", "", "why the discount was given")
	cmd.Flags().StringVar(&opts.ServiceCharge, "service-charge", "", "service charge amount")
	cmd.Flags().StringVar(&opts.Metadata, "metadata", "", "metadata as a JSON object")
	cmd.Flags().StringVar(&opts.Amendments, "pending-amendments", "", "pending amendments as JSON")
	return cmd
}

func (o *AmendOptions) amendment(cmd *cobra.Command) (device.Amendment, error) {
	var a device.Amendment
	if cmd.Flags().Changed("discount-type") {
		typ, err := parseDiscountType(o.DiscountType)
		if err != nil {
			return a, err
		}
		a.DiscountType = &typ
	}
	if o.DiscountValue != "" {
		v, err := parseAmount("discount-value", o.DiscountValue)
		if err != nil {
			return a, err
		}
		a.DiscountValue = &v
	}
	if cmd.Flags().Changed("discount-reason") {
		r := o.DiscountReason
		a.DiscountReason = &r
	}
	if o.ServiceCharge != "" {
		v, err := parseAmount("service-charge", o.ServiceCharge)
		if err != nil {
			return a, err
		}
		a.ServiceCharge = &v
	}
	if o.Metadata != "" {
		if !jsonValid(o.Metadata) {
			return a, fmt.Errorf("--metadata is not valid JSON")
		}
		a.Metadata = []byte(o.Metadata)
	}
	if o.Amendments != "" {
		if !jsonValid(o.Amendments) {
			return a, fmt.Errorf("--pending-amendments is not valid JSON")
		}
		a.PendingAmendments = []byte(o.Amendments)
	}
	return a, nil
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var unsynced bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the orders in the local buffer, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			entries := s.buffer.All()
			if unsynced {
				kept := entries[:0]
				for _, e := range entries {
					if e.Order.SyncStatus == models.SyncOffline {
						kept = append(kept, e)
					}
				}
				entries = kept
			}

			return rootOpts.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				for _, e := range entries {
					o := e.Order
					line := fmt.Sprintf("%s  %-9s  %-12s  %-10s  %s", o.ShortID(), o.Status, o.SyncStatus, o.TableLabel(), utils.FormatCurrency(o.FinalTotal))
					if e.LastRejection != "" {
						line += "  rejected: " + e.LastRejection
					}
					fmt.Fprintln(w, line)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&unsynced, "unsynced", false, "only orders not yet synchronised")
	return cmd
}
