// Package cmd defines the command line flags shared by the relay node's
// binaries.
package cmd

import (
	"github.com/SeungheonOh/xreserve-relay/cmd/flags"
	"github.com/urfave/cli/v2"
)

var logFormatValue string

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value: "info",
	}
	// DataDirFlag defines a path on disk where the relay job database is stored.
	DataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Data directory for the relay job database",
		Value:   "./data",
		EnvVars: []string{"DB_PATH"},
	}
	// EnableTracingFlag defines a flag to enable opencensus tracing.
	EnableTracingFlag = &cli.BoolFlag{
		Name:  "enable-tracing",
		Usage: "Enable request tracing.",
	}
	// TracingProcessNameFlag defines a flag to specify a process name.
	TracingProcessNameFlag = &cli.StringFlag{
		Name:  "tracing-process-name",
		Usage: "The name to apply to tracing tag \"process_name\"",
	}
	// TracingEndpointFlag flag defines the http endpoint for serving traces to Jaeger.
	TracingEndpointFlag = &cli.StringFlag{
		Name:  "tracing-endpoint",
		Usage: "Tracing endpoint defines where relay node traces are exposed to Jaeger.",
		Value: "http://127.0.0.1:14268/api/traces",
	}
	// TraceSampleFractionFlag defines a flag to indicate what fraction of
	// traced operations are sampled.
	TraceSampleFractionFlag = &cli.Float64Flag{
		Name:  "trace-sample-fraction",
		Usage: "Indicate what fraction of relay operations are sampled for tracing.",
		Value: 0.20,
	}
	// DisableMonitoringFlag defines a flag to disable the metrics collection.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable monitoring service.",
	}
	// MonitoringHostFlag defines the host used for the monitoring service.
	MonitoringHostFlag = &cli.StringFlag{
		Name:  "monitoring-host",
		Usage: "Host used for listening and responding to metrics requests",
		Value: "127.0.0.1",
	}
	// MonitoringPortFlag defines the port used by the monitoring service.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus",
		Value: 8080,
	}
	// BackupWebhookOutputDir to write backups to with the db backup webhook.
	BackupWebhookOutputDir = &cli.StringFlag{
		Name:  "db-backup-output-dir",
		Usage: "Output directory for database backups",
	}
	// ForceClearDB removes any previously stored data at the data directory.
	ForceClearDB = &cli.BoolFlag{
		Name:  "force-clear-db",
		Usage: "Clear any previously stored data at the data directory",
	}
	// ClearDB prompts user to see if they want to remove any previously stored data at the data directory.
	ClearDB = &cli.BoolFlag{
		Name:  "clear-db",
		Usage: "Prompt for clearing any previously stored data at the data directory",
	}
	// LogFormat specifies the log output format.
	LogFormat = flags.EnumValue{
		Name:        "log-format",
		Usage:       "Specify log formatting. Supports: text, json, fluentd.",
		Destination: &logFormatValue,
		Enum:        []string{"text", "json", "fluentd"},
		Value:       "text",
	}.GenericFlag()
	// LogFileName specifies the log output file name.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Specify log file name, relative or absolute",
	}
	// ConfigFileFlag specifies the filepath to load flag values.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// RelayConfigFileFlag specifies the filepath to load relay config values.
	RelayConfigFileFlag = &cli.StringFlag{
		Name:  "relay-config-file",
		Usage: "The path to a YAML file with relay config values",
	}
)
