package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/tydee/tydee-pro/internal/client"
	"github.com/tydee/tydee-pro/internal/controller"
	"github.com/tydee/tydee-pro/internal/observability"
	"github.com/tydee/tydee-pro/internal/server"
	"github.com/tydee/tydee-pro/internal/types"
)

// DefaultAPIURL is used when neither --api nor TYDEE_API_URL is set.
const DefaultAPIURL = "http://localhost:8080"

var (
	proAPIURL    string
	proToken     string
	proJobID     string
	proAmount    string
	proPin       string
	proChecklist bool
	proTimer     bool
	proTimeframe string
	proOnline    bool
)

var proCmd = &cobra.Command{
	Use:              "pro",
	Short:            "Professional commands against a running API",
	Long:             "Browse the marketplace, bid, run the start-PIN handshake and follow jobs as a professional. The bearer token comes from --token or TYDEE_TOKEN.",
	PersistentPreRun: func(*cobra.Command, []string) {
		observability.Configure("warn", "text", os.Stderr)
	},
}

var proMarketplaceCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "List jobs open for bidding",
	RunE:  runProMarketplace,
}

var proBidCmd = &cobra.Command{
	Use:   "bid",
	Short: "Place or revise a bid",
	RunE:  runProBid,
}

var proStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an assigned job with the customer's PIN",
	RunE:  runProStart,
}

var proCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Mark an in-progress job completed",
	RunE:  runProComplete,
}

var proWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a job's live state until it finishes",
	RunE:  runProWatch,
}

var proEarningsCmd = &cobra.Command{
	Use:   "earnings",
	Short: "Show the earnings summary",
	RunE:  runProEarnings,
}

var proPresenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Go online or offline",
	RunE:  runProPresence,
}

func init() {
	proCmd.PersistentFlags().StringVar(&proAPIURL, "api", "", "API base URL (default TYDEE_API_URL or "+DefaultAPIURL+")")
	proCmd.PersistentFlags().StringVar(&proToken, "token", "", "Bearer token (default TYDEE_TOKEN)")

	for _, c := range []*cobra.Command{proBidCmd, proStartCmd, proCompleteCmd, proWatchCmd} {
		c.Flags().StringVar(&proJobID, "job", "", "Job id (required)")
	}
	proBidCmd.Flags().StringVar(&proAmount, "amount", "", "Bid amount in rand, e.g. 850 or \"R 1 200.50\" (required)")
	proStartCmd.Flags().StringVar(&proPin, "pin", "", "The customer's 4-digit start PIN (required)")
	proStartCmd.Flags().BoolVar(&proChecklist, "confirm-checklist", false, "Confirm the on-site safety checklist")
	proWatchCmd.Flags().BoolVar(&proTimer, "timer", false, "Show the elapsed work time while the job is in progress")
	proEarningsCmd.Flags().StringVar(&proTimeframe, "timeframe", string(types.TimeframeWeekly), "weekly, monthly or yearly")
	proPresenceCmd.Flags().BoolVar(&proOnline, "online", true, "Whether to appear online")

	proCmd.AddCommand(proMarketplaceCmd, proBidCmd, proStartCmd, proCompleteCmd, proWatchCmd, proEarningsCmd, proPresenceCmd)
	rootCmd.AddCommand(proCmd)
}

// proSession builds an API client and resolves the caller's uid from the token.
func proSession() (*client.Client, string, error) {
	baseURL := firstNonEmpty(proAPIURL, os.Getenv("TYDEE_API_URL"), DefaultAPIURL)
	token := firstNonEmpty(proToken, os.Getenv("TYDEE_TOKEN"))
	if token == "" {
		return nil, "", fmt.Errorf("a bearer token is required (set TYDEE_TOKEN or use --token)")
	}

	uid, err := uidFromToken(token)
	if err != nil {
		return nil, "", err
	}
	c, err := client.New(baseURL, token, nil)
	if err != nil {
		return nil, "", err
	}
	return c, uid, nil
}

// uidFromToken reads the uid claim without verifying the signature. The server
// verifies it on every request.
func uidFromToken(token string) (string, error) {
	claims := &server.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}
	if claims.UID != "" {
		return claims.UID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("token has no uid")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func requireJob() error {
	if proJobID == "" {
		return fmt.Errorf("--job is required")
	}
	return nil
}

// userError keeps the underlying error for logs and leads with the app message.
func userError(err error) error {
	return fmt.Errorf("%s (%w)", controller.UserMessage(err), err)
}

func runProMarketplace(cmd *cobra.Command, _ []string) error {
	c, uid, err := proSession()
	if err != nil {
		return err
	}
	m := controller.NewMarketplace(c, uid)
	if err := m.Refresh(cmd.Context()); err != nil {
		return userError(err)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintMarketplace(m.Jobs(), uid)
	return nil
}

func runProBid(cmd *cobra.Command, _ []string) error {
	if err := requireJob(); err != nil {
		return err
	}
	if proAmount == "" {
		return fmt.Errorf("--amount is required")
	}
	c, uid, err := proSession()
	if err != nil {
		return err
	}

	res, err := controller.NewMarketplace(c, uid).PlaceBid(cmd.Context(), proJobID, proAmount)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Bid placed (%s)\n", res.BidID)
	return nil
}

// loadJob returns a controller primed with the job's current state.
func loadJob(ctx context.Context, c *client.Client, uid string) (*controller.JobController, error) {
	job, err := c.Job(ctx, proJobID)
	if err != nil {
		return nil, userError(err)
	}
	ctrl := controller.NewJobController(c, uid, proJobID)
	ctrl.Apply(*job)
	return ctrl, nil
}

func runProStart(cmd *cobra.Command, _ []string) error {
	if err := requireJob(); err != nil {
		return err
	}
	if proPin == "" {
		return fmt.Errorf("--pin is required")
	}
	c, uid, err := proSession()
	if err != nil {
		return err
	}
	ctrl, err := loadJob(cmd.Context(), c, uid)
	if err != nil {
		return err
	}

	if proChecklist {
		if err := ctrl.ConfirmChecklist(); err != nil {
			return userError(err)
		}
	}
	job, err := ctrl.SubmitPin(cmd.Context(), proPin)
	if err != nil {
		return userError(err)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintJob(job)
	return nil
}

func runProComplete(cmd *cobra.Command, _ []string) error {
	if err := requireJob(); err != nil {
		return err
	}
	c, uid, err := proSession()
	if err != nil {
		return err
	}
	ctrl, err := loadJob(cmd.Context(), c, uid)
	if err != nil {
		return err
	}

	if err := ctrl.Complete(cmd.Context()); err != nil {
		return userError(err)
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintJob(ctrl.Job())
	printer.PrintElapsed(ctrl.Elapsed(time.Now()))
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runProWatch(cmd *cobra.Command, _ []string) error {
	if err := requireJob(); err != nil {
		return err
	}
	c, uid, err := proSession()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := c.SubscribeJob(ctx, proJobID)
	if err != nil {
		return userError(err)
	}

	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)
	ctrl := controller.NewJobController(c, uid, proJobID)
	timerRunning := false

	ctrl.Follow(ctx, updates, func(phase controller.Phase) {
		fmt.Fprintf(out, "\nPhase: %s\n", phase)
		printer.PrintJob(ctrl.Job())
		switch phase {
		case controller.PhaseInProgress:
			if proTimer && !timerRunning {
				timerRunning = true
				go ctrl.Ticker(ctx, time.Second, printer.PrintElapsed)
			}
		case controller.PhaseCompleted, controller.PhaseExpired, controller.PhaseLost:
			cancel()
		}
	})
	return nil
}

func runProEarnings(cmd *cobra.Command, _ []string) error {
	tf, err := types.ParseTimeframe(proTimeframe)
	if err != nil {
		return err
	}
	c, _, err := proSession()
	if err != nil {
		return err
	}

	summary, err := c.Earnings(cmd.Context(), tf)
	if err != nil {
		return userError(err)
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintEarnings(summary)
	return nil
}

func runProPresence(cmd *cobra.Command, _ []string) error {
	c, _, err := proSession()
	if err != nil {
		return err
	}

	p, err := c.SetPresence(cmd.Context(), proOnline)
	if err != nil {
		return userError(err)
	}
	state := "offline"
	if p.IsOnline {
		state = "online"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", p.DisplayName(), state)
	return nil
}
