package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hickar/mailsend/internal/app/archive"
	"github.com/hickar/mailsend/internal/app/config"
	"github.com/hickar/mailsend/internal/app/mailer"
	"github.com/hickar/mailsend/internal/app/preview"
	"github.com/hickar/mailsend/internal/app/ses"
	"github.com/hickar/mailsend/internal/pkg/logger"
)

type fieldAssignments []string

func (f *fieldAssignments) String() string {
	return strings.Join(*f, ", ")
}

func (f *fieldAssignments) Set(value string) error {
	*f = append(*f, value)
	return nil
}

var (
	configFilepath = flag.String("config", "", "Filepath to configuration file. Fields may be given with -set alone")
	envFilepath    = flag.String("env-file", "./.env", "Filepath to environment variables file. Default is '.env'")
	dryRun         = flag.Bool("dry-run", false, "Print the composed message instead of sending it")
	assignments    fieldAssignments
)

func main() {
	flag.Var(&assignments, "set", "Message field assignment name=value, may be repeated (e.g. -set toAddress=x@y.com)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFilepath, *envFilepath)
	if err != nil {
		fail(fmt.Errorf("failed to load configuration: %w", err))
	}

	for _, pair := range assignments {
		if err = cfg.Fields.SetPair(pair); err != nil {
			fail(err)
		}
	}

	level := slog.Level(cfg.LogLevel)
	if cfg.Fields.DebugLevel > 0 {
		level = slog.LevelDebug
	}
	log := logger.New(os.Stderr, level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transport, err := newTransport(ctx, cfg, log)
	if err != nil {
		cancel()
		fail(err)
	}

	runner := mailer.NewRunner(cfg, transport, log.With(slog.String("module", "runner")))

	res, err := runner.Run(ctx)
	if err != nil {
		log.Debug("send failed", slog.String("module", "main"), slog.Any("error", err))
		cancel()
		fail(err)
	}

	fmt.Println(res.String())
}

func newTransport(ctx context.Context, cfg config.Config, log *slog.Logger) (mailer.Transport, error) {
	var transport mailer.Transport

	switch {
	case *dryRun || cfg.Transport == config.TransportStdout:
		// A preview never reaches a mailbox, so it is never archived.
		return preview.New(os.Stdout, log.With(slog.String("module", "preview"))), nil
	case cfg.Transport == config.TransportSES:
		sesTransport, err := ses.New(ctx, cfg.SES, log.With(slog.String("module", "ses")))
		if err != nil {
			return nil, fmt.Errorf("failed to create SES transport: %w", err)
		}
		transport = sesTransport
	default:
		transport = mailer.NewSMTPTransport(mailer.SMTPConfigFrom(cfg), log.With(slog.String("module", "smtp")))
	}

	return archive.Wrap(transport, cfg, nil, log.With(slog.String("module", "archive"))), nil
}

// fail prints err where the calling application reads the result and exits.
func fail(err error) {
	fmt.Println(err.Error())
	//nolint:gocritic
	os.Exit(1)
}
