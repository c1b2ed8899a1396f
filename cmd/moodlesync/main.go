package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vhramos/moodle-calendar-sync/internal/config"
	"github.com/vhramos/moodle-calendar-sync/internal/googleauth"
	"github.com/vhramos/moodle-calendar-sync/internal/logging"
	"github.com/vhramos/moodle-calendar-sync/internal/moodle"
	"github.com/vhramos/moodle-calendar-sync/internal/session"
	"github.com/vhramos/moodle-calendar-sync/internal/sync"
	"github.com/vhramos/moodle-calendar-sync/internal/uploader"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Moodle Calendar Sync Tool

Copies calendar events from a Moodle instance into your primary Google
Calendar for a chosen date range. Moodle is queried month by month through
its AJAX calendar endpoint; events are created at Google in batches with
per-item retry, so a single bad event never aborts the run.

USAGE:
    %s [OPTIONS]

OPTIONS:
    -h, --help                    Show this help message and exit
    -v, --verbose                 Enable verbose output (show DEBUG logs)
    --config FILE                 Path to JSON config file (optional)
    --start DATE                  First day of the sync window, YYYY-MM-DD (required)
    --end DATE                    Last day of the sync window, YYYY-MM-DD, inclusive (required)
    --get-sesskey                 Only report the captured Moodle session token and exit
    --moodle-base-url URL         Moodle instance base URL
                                  (default: https://moodle.utfpr.edu.br)
    --moodle-session-cookie VALUE Value of the MoodleSession cookie of a logged-in session
                                  (overrides config file and MOODLE_SESSION_COOKIE env var)
    --google-credentials-path PATH Path to Google OAuth credentials JSON file
                                  (overrides config file and GOOGLE_CREDENTIALS_PATH env var)
    --token-path PATH             Path to store the Google OAuth token
                                  (default: moodlesync_token.json)
    --timezone ZONE               IANA zone label attached to created events
                                  (default: America/Sao_Paulo)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (MOODLE_BASE_URL, MOODLE_SESSION_COOKIE,
       GOOGLE_CREDENTIALS_PATH, TOKEN_PATH, SYNC_TIMEZONE, LOG_LEVEL)
    3. Config file (--config)
    4. Defaults

EXIT STATUS:
    0 on full success, 1 on a failed sync, 2 on a partial sync (some
    events could not be created).

EXAMPLES:
    # Sync March 2025
    %s --config config.json --start 2025-03-01 --end 2025-03-31

    # Check that a Moodle session token can be captured
    %s --config config.json --get-sesskey

`, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose output (show DEBUG logs)")
	verboseFlagShort := flag.Bool("v", false, "Enable verbose output (shorthand)")
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	startDate := flag.String("start", "", "First day of the sync window, YYYY-MM-DD")
	endDate := flag.String("end", "", "Last day of the sync window, YYYY-MM-DD (inclusive)")
	getSesskey := flag.Bool("get-sesskey", false, "Only report the captured Moodle session token and exit")
	moodleBaseURL := flag.String("moodle-base-url", "", "Moodle instance base URL")
	moodleSessionCookie := flag.String("moodle-session-cookie", "", "Value of the MoodleSession cookie")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file")
	tokenPath := flag.String("token-path", "", "Path to store the Google OAuth token")
	timeZone := flag.String("timezone", "", "IANA zone label attached to created events")
	flag.Parse()

	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configFile, config.Flags{
		MoodleBaseURL:         *moodleBaseURL,
		MoodleSessionCookie:   *moodleSessionCookie,
		GoogleCredentialsPath: *googleCredentialsPath,
		TokenPath:             *tokenPath,
		TimeZone:              *timeZone,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logLevel := cfg.LogLevel
	if *verboseFlag || *verboseFlagShort {
		logLevel = "debug"
	}
	logger := logging.Setup(logLevel)

	clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load Google credentials: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	state := session.NewState()
	observer, err := session.NewObserver(state, cfg.MoodleBaseURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid Moodle base URL: %v\n", err)
		os.Exit(1)
	}
	loader := &session.BrowserLoader{
		URL:           cfg.MoodleBaseURL,
		SessionCookie: cfg.MoodleSessionCookie,
		Observer:      observer,
	}
	bootstrapper := session.NewBootstrapper(state, loader, logger)

	fetcher := moodle.NewClient(cfg.MoodleBaseURL, cfg.MoodleSessionCookie, nil, logger)

	tokenStore := googleauth.NewFileTokenStore(cfg.TokenPath)
	authenticator := googleauth.NewAuthenticator(clientID, clientSecret, tokenStore, logger)

	up := uploader.New(authenticator, logger)

	syncer := sync.NewSyncer(state, bootstrapper, fetcher, authenticator, up, cfg.TimeZone, logger)

	if *getSesskey {
		resp := syncer.Dispatch(ctx, sync.Request{Action: sync.ActionGetSessionToken})
		if resp.Status != sync.StatusSuccess {
			fmt.Fprintln(os.Stderr, resp.Message)
			os.Exit(1)
		}
		fmt.Println(resp.Sesskey)
		return
	}

	if *startDate == "" || *endDate == "" {
		fmt.Fprintln(os.Stderr, "--start and --end are required. Use --help for more information.")
		os.Exit(1)
	}

	resp := syncer.Dispatch(ctx, sync.Request{
		Action: sync.ActionStartSync,
		Dates:  &sync.Dates{Start: *startDate, End: *endDate},
	})

	fmt.Println(resp.Message)
	switch resp.Status {
	case sync.StatusSuccess:
	case sync.StatusPartial:
		for _, failed := range resp.Details.FailedEvents {
			fmt.Printf("  failed: %s (%s)\n", failed.Event.Summary, failed.Error)
		}
		os.Exit(2)
	default:
		os.Exit(1)
	}
}
