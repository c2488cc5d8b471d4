package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPaths    []string
	storeKind      string
	badgerPath     string
	pgDSN          string
	gcsBucket      string
	gcsPrefix      string
	gcsCredentials string
	logLevel       string
	logFormat      string

	runAll         bool
	runConcurrency int
	runConfig      []string
	runAnnotations []string

	serveAddr      string
	resumeInterval = getEnvDuration("RUNPIPE_RESUME_INTERVAL", 0)
	traceStdout    bool

	rootCmd = &cobra.Command{
		Use:           "runpipe",
		Short:         "Run checkpointed pipelines defined in YAML scope files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(cmd.ErrOrStderr())
		},
	}

	runCmd = &cobra.Command{
		Use:   "run SCOPE [PIPELINE]",
		Short: "Run one pipeline of a scope, or all of them with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPipeline, // Defined in cmd_run.go
	}

	resumeCmd = &cobra.Command{
		Use:   "resume",
		Short: "Re-run every pipeline whose latest recorded run failed",
		Args:  cobra.NoArgs,
		RunE:  runResume, // Defined in cmd_run.go
	}

	pipelinesCmd = &cobra.Command{
		Use:     "pipelines",
		Short:   "List scopes and their pipelines",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE:    listPipelines, // Defined in cmd_inspect.go
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Build every configured pipeline once and print the normalized scope files",
		Args:  cobra.NoArgs,
		RunE:  validateConfigs, // Defined in cmd_inspect.go
	}

	checkpointCmd = &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear stored checkpoints",
	}
	checkpointShowCmd = &cobra.Command{
		Use:   "show SCOPE PIPELINE",
		Short: "Print the stored checkpoint of a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE:  showCheckpoint, // Defined in cmd_checkpoint.go
	}
	checkpointClearCmd = &cobra.Command{
		Use:   "clear SCOPE PIPELINE",
		Short: "Delete the stored checkpoint so the next run starts from the beginning",
		Args:  cobra.ExactArgs(2),
		RunE:  clearCheckpoint, // Defined in cmd_checkpoint.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVarP(&configPaths, "config", "c", getEnvList("RUNPIPE_CONFIG"), "scope definition files (repeatable)")
	pf.StringVar(&storeKind, "store", getEnv("RUNPIPE_STORE", storeMemory), "checkpoint store: memory, badger, postgres or gcs")
	pf.StringVar(&badgerPath, "badger-path", getEnv("RUNPIPE_BADGER_PATH", "./runpipe-data"), "badger database directory")
	pf.StringVar(&pgDSN, "pg-dsn", getEnv("RUNPIPE_PG_DSN", ""), "postgres connection string")
	pf.StringVar(&gcsBucket, "gcs-bucket", getEnv("RUNPIPE_GCS_BUCKET", ""), "GCS bucket for checkpoints")
	pf.StringVar(&gcsPrefix, "gcs-prefix", getEnv("RUNPIPE_GCS_PREFIX", "checkpoints"), "object name prefix in the GCS bucket")
	pf.StringVar(&gcsCredentials, "gcs-credentials", getEnv("RUNPIPE_GCS_CREDENTIALS", ""), "service account JSON file (default: application default credentials)")
	pf.StringVar(&logLevel, "log-level", getEnv("RUNPIPE_LOG_LEVEL", "info"), "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", getEnv("RUNPIPE_LOG_FORMAT", "text"), "text or json")

	runCmd.Flags().BoolVar(&runAll, "all", false, "run every pipeline of the scope")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", getEnvInt("RUNPIPE_CONCURRENCY", 4), "pipelines run at once with --all (0 means unlimited)")
	runCmd.Flags().StringArrayVar(&runConfig, "set", nil, "run config entry key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runAnnotations, "annotate", nil, "run annotation key=value (repeatable)")

	serveCmd.Flags().StringVar(&serveAddr, "addr", getEnv("RUNPIPE_ADDR", ":8080"), "listen address")
	serveCmd.Flags().DurationVar(&resumeInterval, "resume-interval", resumeInterval, "re-run failed pipelines this often (0 disables)")
	serveCmd.Flags().BoolVar(&traceStdout, "trace-stdout", false, "export run spans to stdout")

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(pipelinesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(serveCmd)
}
