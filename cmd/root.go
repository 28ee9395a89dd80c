package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/phantom/cmd/cache"
	"github.com/ValentinKolb/phantom/cmd/schema"
	"github.com/ValentinKolb/phantom/cmd/serve"
	"github.com/ValentinKolb/phantom/cmd/util"
	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "phantom",
		Short: "game-state record service",
		Long: fmt.Sprintf(`phantom (v%s)

Stores objects, messages and phantom trails of game sessions in a SQL
database and serves them as one compressed, cached snapshot.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of phantom",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("phantom v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	RootCmd.PersistentPreRunE = setupLogging

	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(cache.CacheCmd)
	RootCmd.AddCommand(schema.SchemaCmd)
	RootCmd.AddCommand(versionCmd)

	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// setupLogging installs the log format before any command logs its first line
func setupLogging(_ *cobra.Command, _ []string) error {
	if err := viper.BindPFlag("log-level", RootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
