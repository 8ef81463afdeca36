package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/onedevai/ai-chatbot/internal/config"
	"github.com/onedevai/ai-chatbot/internal/logging"
	"github.com/onedevai/ai-chatbot/internal/service/conversation"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
	"github.com/onedevai/ai-chatbot/internal/service/upstream"
	"github.com/onedevai/ai-chatbot/internal/tui"
)

type options struct {
	endpoint string
	relay    string
	dark     bool
	plain    bool
	timeout  time.Duration
	logFile  string
	logLevel string
}

func main() {
	_ = godotenv.Load()

	root, err := newRootCommand()
	cobra.CheckErr(err)
	cobra.CheckErr(root.Execute())
}

func newRootCommand() (*cobra.Command, error) {
	defaults, err := config.LoadClient()
	if err != nil {
		return nil, err
	}

	opts := &options{}
	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the hosted AI endpoint from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.endpoint, "endpoint", defaults.Endpoint, "inference endpoint queried directly")
	flags.StringVar(&opts.relay, "relay", defaults.RelayURL, "relay URL such as http://localhost:8080/api/chat; takes precedence over --endpoint")
	flags.BoolVar(&opts.dark, "dark", false, "start in dark mode")
	flags.BoolVar(&opts.plain, "plain", false, "read prompts line by line instead of starting the TUI")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "bound on each request; 0 waits forever")
	flags.StringVar(&opts.logFile, "log-file", defaults.LogFile, "write diagnostics to this file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "diagnostic log level")

	return cmd, nil
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	logger, closeLog, err := openLog(opts.logFile, opts.logLevel)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Logger = logger

	target := config.ClientConfig{Endpoint: opts.endpoint, RelayURL: opts.relay}.Target()
	client, err := upstream.NewClient(target, upstream.WithLogger(logger))
	if err != nil {
		return err
	}

	store := conversation.NewStore(conversation.WithDarkMode(opts.dark))
	d := dispatch.New(store, client,
		dispatch.WithTimeout(opts.timeout),
		dispatch.WithLogger(logger),
	)
	logger.Info().Str("target", target).Msg("chat client started")

	if opts.plain || !isTerminal(out) {
		return tui.RunLines(ctx, in, out, d)
	}

	model := tui.New(d)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run chat ui")
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openLog keeps diagnostics off the screen: they go to path or nowhere.
func openLog(path, level string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "open log file %q", path)
	}
	return logging.New(f, level, "json"), func() { _ = f.Close() }, nil
}
