// Binary tgrun runs multithreaded processes in the emulated kernel and
// exercises execve and exit_group between their threads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/tgrun/cmd"
	"github.com/walteh/tgexec/tgrun/config"
)

var (
	configFile = flag.String("config", "", "path to a TOML configuration file")
	logLevel   = flag.String("log-level", "", "overrides the configured log level: warning, info or debug")
	logFormat  = flag.String("log-format", "", "overrides the configured log format: text or json")
)

func main() {
	execCmd := &cmd.Exec{}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(execCmd, "")
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tgrun: %v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	log.SetTarget(os.Stderr, conf.Log.Format)
	log.SetLevel(conf.LogLevel())
	execCmd.Config = conf

	os.Exit(int(subcommands.Execute(context.Background())))
}

func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if *configFile != "" {
		var err error
		if conf, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *logLevel != "" {
		conf.Log.Level = *logLevel
	}
	if *logFormat != "" {
		conf.Log.Format = *logFormat
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
