package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"creditledger/internal/adapter/repo"
	"creditledger/internal/infra"
	"creditledger/internal/providers/payment"
	"creditledger/internal/reconcile"
)

const usage = `usage: creditadmin <command> [flags]

commands:
  grant         add credits to a user (settles unattributed purchases)
  unattributed  list payments recorded without a user
  failed        list webhook events whose processing failed
  replay        replay one batch of failed events now`

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		exitWithError(errors.New(usage))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "creditadmin").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	ledger := repo.NewCreditLedger(runner)
	events := repo.NewEventLog(runner)

	deps := reconcile.Deps{
		Ledger:        ledger,
		Subscriptions: repo.NewSubscriptionRepository(runner),
		Events:        events,
		Logger:        logger,
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "grant":
		err = grant(ctx, reconcile.NewService(deps), args)
	case "unattributed":
		err = listUnattributed(ctx, ledger, args)
	case "failed":
		err = listFailed(ctx, events, args)
	case "replay":
		if key := strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")); key != "" {
			client, cerr := payment.NewClient(payment.Options{
				SecretKey:  key,
				APIBaseURL: os.Getenv("STRIPE_API_BASE_URL"),
				Logger:     &logger,
			})
			if cerr != nil {
				exitWithError(cerr)
			}
			deps.Provider = client
		}
		err = replay(ctx, reconcile.NewService(deps), args)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		exitWithError(err)
	}
}

func grant(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	userID := fs.String("user", "", "user ID to credit")
	credits := fs.Int64("credits", 0, "credits to add")
	ref := fs.String("ref", "", "idempotency reference, e.g. the checkout session being settled")
	note := fs.String("note", "", "free-form note stored with the grant")
	operator := fs.String("operator", os.Getenv("USER"), "who is granting")
	_ = fs.Parse(args)

	out, err := svc.GrantManual(ctx, reconcile.ManualGrant{
		UserID:    *userID,
		Credits:   *credits,
		Reference: *ref,
		Note:      *note,
		Operator:  *operator,
	})
	if err != nil {
		return err
	}
	if out.Action == reconcile.ActionDuplicate {
		fmt.Printf("Grant %s was already applied (%d credits)\n", out.ExternalID, out.CreditsGranted)
		return nil
	}
	fmt.Printf("Granted %d credits to %s (%s)\n", out.CreditsGranted, out.UserID, out.ExternalID)
	if out.Balance != nil {
		fmt.Printf("balance=%d\n", *out.Balance)
	}
	return nil
}

func listUnattributed(ctx context.Context, ledger *repo.CreditLedgerPG, args []string) error {
	fs := flag.NewFlagSet("unattributed", flag.ExitOnError)
	limit := fs.Int("limit", 50, "rows to show")
	_ = fs.Parse(args)

	rows, err := ledger.ListUnattributed(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXTERNAL ID\tKIND\tEMAIL\tCREDITS\tAMOUNT\tCREATED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s %s\t%s\n",
			r.ExternalID, r.Kind, r.Email, r.CreditsRequested,
			r.AmountPaid.StringFixed(2), r.Currency, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func listFailed(ctx context.Context, events *repo.EventLogPG, args []string) error {
	fs := flag.NewFlagSet("failed", flag.ExitOnError)
	limit := fs.Int("limit", 50, "rows to show")
	_ = fs.Parse(args)

	rows, err := events.ListFailed(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT ID\tTYPE\tATTEMPTS\tRECEIVED\tERROR")
	for _, ev := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", ev.ID, ev.Type, ev.Attempts, ev.ReceivedAt.Format(time.RFC3339), ev.ProcessingError)
	}
	return tw.Flush()
}

func replay(ctx context.Context, svc *reconcile.Service, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	maxAttempts := fs.Int("max-attempts", 20, "skip events tried this many times")
	batch := fs.Int("batch", 20, "events to replay")
	_ = fs.Parse(args)

	w := reconcile.NewWorker(svc, reconcile.WorkerOptions{
		MaxAttempts: *maxAttempts,
		StaleAfter:  time.Nanosecond,
		BatchSize:   *batch,
	})
	n, err := w.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Replayed %d events\n", n)
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
