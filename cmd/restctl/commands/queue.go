package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/restkit/core"
	"github.com/kbukum/restkit/eventually"
)

func newQueueCmd(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the durable request queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued requests in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStoppedClient(cmd, global, func(ctx context.Context, c *core.Client) error {
				entries, err := c.Queue().Entries(ctx)
				if err != nil {
					return err
				}
				views := make(entryList, 0, len(entries))
				for _, e := range entries {
					views = append(views, newEntryView(e))
				}
				return printOutput(cmd.OutOrStdout(), global.Output, views, len(views) == 0, "Queue is empty.", views)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every queued request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStoppedClient(cmd, global, func(ctx context.Context, c *core.Client) error {
				n, err := c.Queue().PendingCount(ctx)
				if err != nil {
					return err
				}
				if err := c.Queue().RemoveAllRequests(ctx); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queued request(s).\n", n)
				return err
			})
		},
	})
	var wait time.Duration
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Deliver queued requests and wait until the queue is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, global, func(ctx context.Context, c *core.Client) error {
				if wait > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, wait)
					defer cancel()
				}
				n, err := waitEmpty(ctx, c.Queue())
				if err != nil {
					return fmt.Errorf("%d request(s) still queued: %w", n, err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
				return err
			})
		},
	}
	flush.Flags().DurationVar(&wait, "wait", time.Minute, "give up after this long (0 waits until interrupted)")
	cmd.AddCommand(flush)
	return cmd
}

// waitEmpty polls q until it holds no entries or ctx is done.
func waitEmpty(ctx context.Context, q *eventually.Queue) (int, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := q.PendingCount(ctx)
		if err != nil {
			return n, err
		}
		if n == 0 {
			return 0, nil
		}
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-ticker.C:
		}
	}
}

type entryView struct {
	ID         string    `json:"id" yaml:"id"`
	Method     string    `json:"method" yaml:"method"`
	URL        string    `json:"url" yaml:"url"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at" yaml:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

func newEntryView(e *eventually.Entry) entryView {
	v := entryView{ID: e.ID, Attempts: e.Attempts, EnqueuedAt: e.EnqueuedAt, LastError: e.LastError}
	if req, err := e.Request(); err == nil {
		v.Method = string(req.Method())
		v.URL = req.URL()
	}
	return v
}

type entryList []entryView

func (l entryList) Headers() []string {
	return []string{"ID", "METHOD", "URL", "ATTEMPTS", "ENQUEUED", "LAST ERROR"}
}

func (l entryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			e.ID, e.Method, e.URL, strconv.Itoa(e.Attempts),
			e.EnqueuedAt.Local().Format(time.DateTime), e.LastError,
		})
	}
	return rows
}
