// Package cmd wires the command line interface. Settings are resolved
// in layers: built-in defaults, then the config file, then
// BACKUP_RUNNER_* environment variables, then flags.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"backup-runner/internal/app"
	"backup-runner/internal/config"
	"backup-runner/internal/display"
	"backup-runner/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Logging flags
	verbose   bool
	quiet     bool
	logLevel  string
	logFormat string
	logFile   string
	useSyslog bool

	// Operation flags
	dryRun  bool
	jobsDir string

	// Display flags
	noColor        bool
	themeName      string
	tableStyleName string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backup-runner",
	Short: "Drive rdiff-backup and ZFS backup jobs from declarative job files",
	Long: `backup-runner reads YAML job files describing what to back up and runs
each job as a workflow: quiesce commands on the source host, optional LVM
snapshots, the transfer itself, snapshot teardown and increment pruning.
Transfers use rdiff-backup for incremental history or rsync onto a ZFS
dataset that is then snapshotted. Every external command is logged, remote
commands run over ssh, and a failed job never stops the jobs after it.

Examples:
  # Run every job in the jobs directory
  backup-runner run

  # Run two specific job files
  backup-runner run /etc/backup-runner/jobs.d/www.yaml db.yaml

  # Show the commands a run would execute without touching anything
  backup-runner run --dry-run

  # Validate the engine settings and every job file
  backup-runner check

  # List the configured jobs
  backup-runner list`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags parsed fine, so errors past this point are operational
		// failures, not usage mistakes.
		cmd.SilenceUsage = true
		if verbose && quiet {
			return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()

	// Configuration file flag
	pf.StringVar(&cfgFile, "config", "", "config file (default is /etc/backup-runner/config.yaml)")

	// Logging flags
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	pf.StringVar(&logLevel, "log-level", "", "log level (quiet, normal, verbose, debug)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.StringVar(&logFile, "log-file", "", "also append logs to this file")
	pf.BoolVar(&useSyslog, "syslog", false, "also send logs to syslog")

	// Operation flags
	pf.BoolVar(&dryRun, "dry-run", false, "log the commands a run would execute without running them")
	pf.StringVar(&jobsDir, "jobs-dir", "", "directory scanned for job definition files")

	// Display flags
	pf.BoolVar(&noColor, "no-color", false, "disable color output")
	pf.StringVar(&themeName, "theme", "dark", "color theme (dark, light, plain)")
	pf.StringVar(&tableStyleName, "table-style", "default", "table style (default, rounded, compact)")

	// Bind flags to viper so the config file and environment can set the
	// same keys
	viper.BindPFlag("dry_run", pf.Lookup("dry-run"))
	viper.BindPFlag("jobs_dir", pf.Lookup("jobs-dir"))
	viper.BindPFlag("log_level", pf.Lookup("log-level"))
	viper.BindPFlag("log_format", pf.Lookup("log-format"))
	viper.BindPFlag("log_file", pf.Lookup("log-file"))
	viper.BindPFlag("syslog", pf.Lookup("syslog"))
	viper.BindPFlag("display.theme", pf.Lookup("theme"))
	viper.BindPFlag("display.table_style", pf.Lookup("table-style"))

	// Add subcommands
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config.yaml in the system config directory and the
		// working directory.
		viper.AddConfigPath("/etc/backup-runner")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("BACKUP_RUNNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// buildSettings builds the engine settings from the config file, the
// environment and CLI flags.
func buildSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings := &config.Settings{}

	// Load from viper (config file plus bound flags)
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Fill the holes the config file left, then apply the environment on
	// top of the file.
	settings.SetDefaults()
	settings.LoadFromEnvironment()

	// Flags beat the environment; LoadFromEnvironment may have stomped a
	// value viper already merged from a changed flag, so re-apply them.
	if cmd.Flags().Changed("dry-run") {
		settings.DryRun = dryRun
	}
	if cmd.Flags().Changed("jobs-dir") {
		settings.JobsDir = jobsDir
	}

	return settings, nil
}

// buildLogger builds the logger from the log flags and their config
// file equivalents.
func buildLogger(cmd *cobra.Command) (*logging.Logger, error) {
	level := logging.LogLevel(viper.GetString("log_level"))
	switch {
	case verbose:
		level = logging.LogLevelVerbose
	case quiet:
		level = logging.LogLevelQuiet
	case level == "":
		level = logging.LogLevelNormal
	}

	switch level {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	switch format := viper.GetString("log_format"); format {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	// Tables and reports go to stdout, logs to stderr, so piping the one
	// does not capture the other.
	return logging.NewLogger(logging.Config{
		Level:     level,
		Output:    cmd.ErrOrStderr(),
		Format:    viper.GetString("log_format"),
		LogFile:   viper.GetString("log_file"),
		UseSyslog: viper.GetBool("syslog"),
		SyslogTag: "backup-runner",
	})
}

// buildRenderer builds the summary renderer from the display flags.
func buildRenderer(cmd *cobra.Command) *display.Renderer {
	colors := display.NewColorSystem()
	if noColor {
		colors = display.NewPlainColorSystem()
	}
	theme := display.ThemeByName(viper.GetString("display.theme"))
	style := display.TableStyleByName(viper.GetString("display.table_style"))
	return display.NewRenderer(cmd.OutOrStdout(), colors, theme, style)
}

// newApp assembles the application from the resolved settings, logger
// and renderer.
func newApp(cmd *cobra.Command) (*app.App, error) {
	settings, err := buildSettings(cmd)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := buildLogger(cmd)
	if err != nil {
		return nil, err
	}

	a, err := app.New(settings, logger, buildRenderer(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return a, nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for backup-runner",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backup-runner version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

This command outputs a complete configuration template with all available
options. Redirect the output to a file and customize it for your
environment.

Examples:
  # Generate the engine config
  backup-runner config > /etc/backup-runner/config.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), sampleConfig)
		},
	}
}

const sampleConfig = `# backup-runner engine configuration
# Jobs are defined separately, one YAML file per job, in jobs_dir.

# Directory on the backup server holding one rdiff-backup repository
# per job. Required for rdiff and rdiff-lvm jobs.
backup_store: /srv/backup-store

# Directory scanned for job definition files.
jobs_dir: /etc/backup-runner/jobs.d

# How to reach remote source hosts.
remote_user: root         # ssh account on source hosts
ssh_path: /usr/bin/ssh    # ssh binary
ssh_port: 22              # ssh port on source hosts
ssh_compression: false    # true keeps ssh-level compression for slow links

# Transfer tools.
rdiff_backup_path: /usr/bin/rdiff-backup
rsync_path: /usr/bin/rsync
# rsync_options replaces the default rsync option set when non-empty.
# rsync_options: ["--archive", "--numeric-ids", "--delete"]

# Expire rdiff-backup increments after successful runs. Takes any
# rdiff-backup timespec (30D, 8W, 1Y). Empty keeps increments forever.
remove_older_than: 30D

# Job filters are relative to this directory on the source host.
top_level_src_dir: /

# LVM snapshot lifecycle.
snapshot_mount_root: /tmp        # where snapshot mounts are created
snapshot_suffix: -backup-runner  # appended to the origin volume name
snapshot_size: 1G                # copy-on-write space per snapshot

# ZFS snapshot lifecycle.
zfs_snapshot_prefix: backup-runner-
snapshot_expiration_days: 60     # destroy managed snapshots older than this

# Retry transient command failures.
max_retries: 3
retry_interval: 60s

# Log the commands a run would execute without running them.
dry_run: false

# Logging. Jobs usually run from cron, so syslog is the durable
# destination; log_file appends to a file as well.
log_level: normal   # quiet, normal, verbose, debug
log_format: text    # text, json
log_file: ""
syslog: false

# Terminal output for interactive use.
# display:
#   theme: dark              # dark, light, plain
#   table_style: default     # default, rounded, compact

# Machine-readable run reports, one JSON document per job run.
report:
  enabled: false
  dir: /var/lib/backup-runner/reports
  compression: gzip        # none, gzip, lz4, zstd
  retention_days: 90       # prune local reports older than this
  # Name of an environment variable holding the report encryption
  # passphrase. Empty writes reports unencrypted.
  encryption_key_env: ""
  # Upload each report to S3 when a bucket is set. Credentials come
  # from the usual AWS chain (environment, shared config, instance role).
  s3_bucket: ""
  s3_region: ""
  s3_prefix: ""

# Example job file (/etc/backup-runner/jobs.d/www.yaml):
#
#   label: www
#   type: rdiff              # rdiff, rdiff-lvm or zfs-lvm
#   host: webserver1         # omit to back up the local machine
#   include:
#     - /etc
#     - /var/www
#   exclude:
#     - /var/www/cache
#   pre_command:
#     - systemctl stop nginx
#   post_command:
#     - systemctl start nginx
#   settings:                # per-job overrides of the settings above
#     remove_older_than: 8W
`
