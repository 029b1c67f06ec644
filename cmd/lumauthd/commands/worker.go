package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hnrobert/lumauth/internal/config"
	"github.com/hnrobert/lumauth/internal/hostauth"
	"github.com/hnrobert/lumauth/internal/hostfs"
	"github.com/hnrobert/lumauth/internal/logger"
	"github.com/hnrobert/lumauth/internal/worker"
)

// Worker flags. The worker runs with a scrubbed environment, so everything
// it needs arrives on the command line.
var (
	workerHostRoot      string
	workerRequiredGroup string
	workerSuFallback    bool
	workerSuTimeout     time.Duration
	workerSuUser        string
	workerLogLevel      string
	workerLogFormat     string
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run the privileged authentication worker (started by serve)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	f := workerCmd.Flags()
	f.StringVar(&workerHostRoot, "host-root", "/", "where the host filesystem is mounted")
	f.StringVar(&workerRequiredGroup, "required-group", "", "only accept members of this group")
	f.BoolVar(&workerSuFallback, "su-fallback", true, "verify unsupported hashes with su(1)")
	f.DurationVar(&workerSuTimeout, "su-timeout", hostauth.DefaultSuTimeout, "bound on one su(1) check")
	f.StringVar(&workerSuUser, "su-user", hostauth.DefaultSuUser, "unprivileged account su(1) runs as")
	f.StringVar(&workerLogLevel, "log-level", "INFO", "log level")
	f.StringVar(&workerLogFormat, "log-format", "text", "log format (text or json)")
}

// workerArgs is the argv serve passes to its worker.
func workerArgs(auth config.AuthConfig, logging config.LoggingConfig) []string {
	args := []string{
		"worker",
		"--host-root=" + auth.HostRoot,
		"--su-timeout=" + auth.SuTimeout.String(),
		"--log-level=" + logging.Level,
		"--log-format=" + logging.Format,
	}
	if auth.RequiredGroup != "" {
		args = append(args, "--required-group="+auth.RequiredGroup)
	}
	if auth.SuFallback {
		args = append(args, "--su-user="+auth.SuUser)
	} else {
		args = append(args, "--su-fallback=false")
	}
	return args
}

func runWorker(cmd *cobra.Command, args []string) error {
	// stdout is closed; logs go to the parent through stderr.
	if err := logger.Init(logger.Config{Level: workerLogLevel, Format: workerLogFormat, Output: "stderr"}); err != nil {
		return err
	}
	defer logger.Close()

	backend := hostauth.New(hostfs.Root(workerHostRoot), hostauth.Options{
		SuFallback: workerSuFallback,
		SuTimeout:  workerSuTimeout,
		SuUser:     workerSuUser,
	})
	w := worker.New(backend, workerRequiredGroup)

	logger.Info("worker started", "host_root", workerHostRoot, "required_group", workerRequiredGroup)
	if err := worker.ServeInherited(w); err != nil {
		logger.Error("worker exiting", "error", err)
		return err
	}
	logger.Info("worker stopped")
	return nil
}
