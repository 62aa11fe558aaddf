// Wardenctl indexes and searches warden's runbooks and tries triage from the
// command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	wc "github.com/linnemanlabs/warden/internal/cfg"
	"github.com/linnemanlabs/warden/internal/cli"
)

const appName = "warden"
const component = "wardenctl"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		appCfg wc.Config
		logCfg log.Config
	)
	fs := flag.NewFlagSet(component, flag.ContinueOnError)
	appCfg.RegisterFlags(fs)
	logCfg.RegisterFlags(fs)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	// env first: cobra parses through pflag, which the go FlagSet cannot
	// see, so command-line flags applied afterwards still win
	cfg.FillFromEnv(fs, "WARDEN_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	var logger log.Logger
	open := func(ctx context.Context, withTriage bool) (*cli.Env, error) {
		if logger == nil {
			if err := logCfg.Validate(); err != nil {
				return nil, err
			}
			lg, err := log.New(logCfg.ToOptions(v.AppName))
			if err != nil {
				return nil, fmt.Errorf("logger init: %w", err)
			}
			logger = lg.With("component", component)
		}
		return cli.AppOpener(&appCfg, logger)(log.WithContext(ctx, logger), withTriage)
	}

	root := cli.NewRootCmd(open)
	// accept --chunk_size as well as --chunk-size
	root.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().AddGoFlagSet(fs)

	return root.ExecuteContext(ctx)
}
