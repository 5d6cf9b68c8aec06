package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/noticerun/internal/accounts"
	"github.com/sawpanic/noticerun/internal/app"
	"github.com/sawpanic/noticerun/internal/report"
)

// openSession builds the app and resolves the session named by --account.
func openSession(ctx context.Context, cmd *cobra.Command) (*app.App, *app.Session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	accountID, _ := cmd.Flags().GetInt64("account")

	if accountID > 0 {
		s, err := a.Session(ctx, accountID)
		if err == nil {
			return a, s, nil
		}
		if !errors.Is(err, accounts.ErrNotFound) {
			_ = a.Close()
			return nil, nil, err
		}
		log.Ctx(ctx).Info().Int64("account_id", accountID).Msg("Account not in store, using configured credentials")
	}
	s, err := a.Default(accountID)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, s, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return runContext(ctx), cancel
}

func runPrelim(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID, _ := cmd.Flags().GetInt64("task")
	res, err := s.Prelim(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Effective: %s\n", res.Summary.EffectiveDate.Format("2006-01-02"))
	fmt.Fprintf(os.Stdout, "Buildings: %d\n", len(res.Summary.Batches))
	fmt.Fprintf(os.Stdout, "Increases: %d (%s)\n", res.Summary.Count, report.Money(res.Summary.TotalIncrease))
	fmt.Fprintf(os.Stdout, "Messages:  %d\n", res.Messages)
	fmt.Fprintf(os.Stdout, "Bundle:    %s\n", res.BundleName)
	fmt.Fprintf(os.Stdout, "Workbook:  %t\n", res.Workbook)
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, report.IgnoredMessage(res.Summary))
	return nil
}

func runNotices(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID, _ := cmd.Flags().GetInt64("task")
	rep, err := s.Notices(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Buildings: %d (skipped %d)\n", rep.Buildings, rep.Skipped)
	fmt.Fprintf(os.Stdout, "Tasks:     %d\n", rep.Tasks)
	fmt.Fprintf(os.Stdout, "Notices:   %d (failed %d)\n", rep.Notices, rep.Failed)
	fmt.Fprintf(os.Stdout, "Parts:     %d\n", rep.Parts)
	return nil
}

func runLMR(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	taskID, _ := cmd.Flags().GetInt64("task")
	res, err := s.LMR(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, res.Message)
	return nil
}
