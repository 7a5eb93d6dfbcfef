package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joncooperworks/curlfuzz"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v2"
)

func configFromContext(c *cli.Context) (*curlfuzz.Config, error) {
	config, err := curlfuzz.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("processes") {
		config.ProcessCount = c.Int("processes")
	}
	if c.IsSet("threads") {
		config.ThreadsPerProcess = c.Int("threads")
	}
	if c.IsSet("strong") {
		config.StrongFuzz = c.Bool("strong")
	}
	if c.IsSet("secure") {
		config.Secure = c.Bool("secure")
	}
	if c.IsSet("timeout") {
		config.Timeout = c.Duration("timeout")
	}
	if c.IsSet("rate") {
		config.RateLimit = c.Float64("rate")
	}
	if c.IsSet("wordlist") {
		config.Wordlist = c.String("wordlist")
	}
	if c.IsSet("payload-dir") {
		config.PayloadDir = c.String("payload-dir")
	}
	if c.IsSet("in-process") {
		config.InProcess = c.Bool("in-process")
	}
	if c.IsSet("debug") {
		config.Debug = c.Bool("debug")
	}

	return config, config.Validate()
}

func actionCurlFuzz(c *cli.Context) error {
	config, err := configFromContext(c)
	if err != nil {
		return err
	}
	logger := curlfuzz.NewLogger(os.Stderr, config.Debug)

	if c.NArg() == 0 {
		return cli.Exit("at least one capture is required", 1)
	}

	captures := make([]string, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		if filename, ok := strings.CutPrefix(arg, "@"); ok {
			capture, err := curlfuzz.CaptureFromFile(filename)
			if err != nil {
				return err
			}
			arg = capture
		}
		captures = append(captures, arg)
	}

	payloads, err := config.LoadPayloads()
	if err != nil {
		return err
	}
	if len(payloads) > 0 {
		logger.Info().Int("payloads", len(payloads)).Msg("Loaded payloads")
	}

	reporter := curlfuzz.NewConsoleReporter(os.Stdout, config.ReportBuffer)
	defer reporter.Close()

	// The first interrupt cancels every campaign; later ones are swallowed until teardown finishes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool curlfuzz.Pool = &curlfuzz.ProcessPool{Logger: logger}
	if config.InProcess {
		pool = &curlfuzz.GoroutinePool{Logger: logger}
	}

	prober := &curlfuzz.HTTPProber{
		Sender: curlfuzz.NewClient(config.Timeout),
		Count:  config.ProbeCount,
		Logger: logger,
	}

	var wg conc.WaitGroup
	for _, capture := range captures {
		capture := capture
		campaign := curlfuzz.NewCampaign(config, curlfuzz.CurlTranslator{}, prober, pool, reporter, logger)
		campaign.Payloads = payloads
		wg.Go(func() {
			outcome := campaign.Run(ctx, capture)
			logger.Info().
				Str("campaign", outcome.ID).
				Stringer("state", outcome.State).
				Int("workers", outcome.Workers).
				Int("forwarded", outcome.Forwarded).
				AnErr("reason", outcome.Err).
				Msg("Campaign finished")
		})
	}
	wg.Wait()
	return nil
}

func actionWorker(c *cli.Context) error {
	logger := curlfuzz.NewLogger(os.Stderr, c.Bool("debug"))
	return curlfuzz.ServeWorker(context.Background(), os.Stdin, os.Stdout, curlfuzz.DefaultSenderFactory, logger)
}

func main() {
	app := &cli.App{
		Name:      "curlfuzz",
		Usage:     "fuzz the body of a request captured as a curl command",
		ArgsUsage: "<curl command | @file> [<curl command | @file>...]",
		Action:    actionCurlFuzz,
		Commands: []*cli.Command{
			{
				Name:   curlfuzz.WorkerCommand,
				Usage:  "run a single fuzz worker, reading its spec on stdin",
				Hidden: true,
				Action: actionWorker,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "debug",
						Usage: "use debug level logging",
					},
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Required: false,
				Usage:    "YAML config file, CURLFUZZ_* environment variables also apply",
			},
			&cli.IntFlag{
				Name:  "processes",
				Value: 5,
				Usage: "number of worker processes",
			},
			&cli.IntFlag{
				Name:  "threads",
				Value: 10,
				Usage: "concurrent requests per worker",
			},
			&cli.BoolFlag{
				Name:  "strong",
				Value: true,
				Usage: "use aggressive mutations",
			},
			&cli.BoolFlag{
				Name:  "secure",
				Usage: "send requests over TLS even if the capture URL is http",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per request timeout",
			},
			&cli.Float64Flag{
				Name:  "rate",
				Usage: "maximum requests per second per worker, 0 for no limit",
			},
			&cli.StringFlag{
				Name:  "wordlist",
				Usage: "newline separated payloads",
			},
			&cli.StringFlag{
				Name:  "payload-dir",
				Usage: "directory of files, each used whole as a payload",
			},
			&cli.BoolFlag{
				Name:  "in-process",
				Usage: "run workers as goroutines instead of child processes",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "use debug level logging",
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
