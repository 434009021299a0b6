/*
Copyright 2025 Outbound Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/outboundlabs/cadence"
	"github.com/outboundlabs/cadence/config"
	"github.com/outboundlabs/cadence/database"
	"github.com/outboundlabs/cadence/internal/notification"
)

// CLI encapsulates the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// cadenceInstance holds the engine instance and its configuration for
// use by the subcommands.
type cadenceInstance struct {
	engine *cadence.Cadence
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the
// error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the engine before any
// command runs.
func preRun(app *cadenceInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("cadence.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		engine, err := setupCadence(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = engine
		app.cnf = cnf

		return nil
	}
}

// setupCadence creates the engine from the configured data source.
func setupCadence(cfg *config.Configuration) (*cadence.Cadence, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	engine, err := cadence.NewCadence(db)
	if err != nil {
		return nil, fmt.Errorf("error creating cadence engine: %v", err)
	}
	return engine, nil
}

// NewCLI sets up the root command and the workers/migrate subcommands.
func NewCLI() *CLI {
	var configFile string
	app := &cadenceInstance{}

	var rootCmd = &cobra.Command{
		Use:   "cadence",
		Short: "Outbound send governance and warm-up engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./cadence.json", "Configuration file for the engine")

	rootCmd.PersistentPreRunE = preRun(app)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))

	return &CLI{cmd: rootCmd}
}

func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
