// Package cli implements the insightflow command tree.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insightflow",
		Short: "Authenticated query gateway for observability data",
		Long: `Insightflow fronts a ClickHouse observability store with an authenticated
HTTP API: session-based login with brute-force lockout, role-based account
management with an audit trail, and a fixed vocabulary of analytical queries
over logs and traces with keyset pagination.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./insightflow.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("insightflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.insightflow")
	}

	viper.SetEnvPrefix("INSIGHTFLOW")
	viper.AutomaticEnv()
	viper.ReadInConfig() // config file is optional
}
