package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/replier"
)

func newReplyOnceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reply-once",
		Short: "Answer unseen mentions on every platform once, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			sums, _ := svc.ReplyOnce(cmd.Context())
			printSummaries(cmd, sums)
			a.log.Info("reply pass finished")
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-notifications",
		Short: "Mark every platform's notifications as seen, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.ClearNotifications(cmd.Context()); err != nil {
				a.log.Warn("some notifications could not be cleared", zap.Error(err))
				return err
			}
			a.log.Info("notifications cleared")
			return nil
		},
	}
}

func newDiagnoseCmd(a *app) *cobra.Command {
	var reply bool
	cmd := &cobra.Command{
		Use:   "diagnose <platform>",
		Short: "Show how the unseen notifications of one platform would be handled",
		Long: `diagnose lists the unseen notifications of one platform and whether each
would get a reply. Nothing is marked seen unless --reply is given, in which
case the notifications are processed for real.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			decisions, sum, err := svc.Diagnose(cmd.Context(), args[0], reply)
			printDecisions(cmd, decisions)
			if sum != nil {
				printSummaries(cmd, []replier.Summary{*sum})
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&reply, "reply", false, "answer the notifications and mark them seen")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load configuration, content and cursor and log in to every platform, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			c, err := svc.Cursor(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: next post %d of %d\n", c.Normalize(svc.PostCount()), svc.PostCount())
			return nil
		},
	}
}

func printDecisions(cmd *cobra.Command, ds []replier.Decision) {
	if len(ds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no unseen notifications")
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ANSWER\tKIND\tID\tAUTHOR\tREASON")
	for _, d := range ds {
		n := d.Notification
		fmt.Fprintf(w, "%t\t%s\t%s\t%s\t%s\n", d.Answer, n.RawReason, n.ID, n.Author, d.Reason)
	}
	_ = w.Flush()
}

func printSummaries(cmd *cobra.Command, sums []replier.Summary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tUNSEEN\tREPLIED\tFAILED\tSKIPPED\tERROR")
	for _, s := range sums {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", s.Platform, s.Unseen, s.Replied, s.Failed, s.Skipped, errText)
	}
	_ = w.Flush()
}
