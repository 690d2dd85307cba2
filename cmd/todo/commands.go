package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/todo-sync/internal/controller"
	"github.com/vyrodovalexey/todo-sync/internal/model"
	"github.com/vyrodovalexey/todo-sync/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive list (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, a)
		},
	}
}

func runTUI(cmd *cobra.Command, a *app) error {
	c, err := a.openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctrl := controller.New(c, a.msgs, a.logger.Named("controller"))
	return tui.Run(cmd.Context(), ctrl, a.msgs)
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the current items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			c, err := a.openClient()
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := firstSnapshot(ctx, c)
			if err != nil {
				return err
			}
			return a.writeItems(cmd.OutOrStdout(), items)
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Add an item and print its id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			c, err := a.openClient()
			if err != nil {
				return err
			}
			defer c.Close()

			item, err := c.Create(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return err
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace the text of an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			c, err := a.openClient()
			if err != nil {
				return err
			}
			defer c.Close()

			return c.Update(ctx, args[0], strings.Join(args[1:], " "))
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()

			c, err := a.openClient()
			if err != nil {
				return err
			}
			defer c.Close()

			return c.Delete(ctx, args[0])
		},
	}
}

// firstSnapshot subscribes, waits for the initial collection and cancels.
func firstSnapshot(ctx context.Context, c controller.StoreClient) ([]model.Item, error) {
	snapshots := make(chan []model.Item, 1)
	failures := make(chan error, 1)

	cancel, err := c.Subscribe(ctx,
		func(items []model.Item) {
			select {
			case snapshots <- items:
			default:
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	if err != nil {
		return nil, err
	}
	defer cancel()

	select {
	case items := <-snapshots:
		return items, nil
	case err := <-failures:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for items: %w", ctx.Err())
	}
}

func (a *app) writeItems(out io.Writer, items []model.Item) error {
	if len(items) > 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tTEXT")
		for _, item := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, item.CreatedAt.Local().Format("2006-01-02 15:04"), item.Text)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, a.msgs.Footer(len(items)))
	return err
}
