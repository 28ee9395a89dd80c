package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/phantom/cmd/util"
	"github.com/ValentinKolb/phantom/lib/recordstore"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
	"github.com/ValentinKolb/phantom/lib/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create missing record tables and indexes",
	Long: `Reconcile the record schema once and print the report. Existing tables are
never altered or dropped. With --check nothing is created and the command
fails if a structure is missing.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return util.BindCommandFlags(cmd)
	},
	RunE: run,
}

func init() {
	key := "db-driver"
	SchemaCmd.Flags().String(key, "sqlite", util.WrapString("Record store driver (sqlite, postgres)"))

	key = "db-dsn"
	SchemaCmd.Flags().String(key, "phantom.db", util.WrapString("Data source name of the record store"))

	key = "timeout"
	SchemaCmd.Flags().Duration(key, 30*time.Second, util.WrapString("Deadline of the whole run"))

	key = "check"
	SchemaCmd.Flags().Bool(key, false, util.WrapString("Only report missing structures"))
}

func run(cmd *cobra.Command, _ []string) error {
	records, err := sqlstore.Open(sqlstore.Config{
		Driver: viper.GetString("db-driver"),
		DSN:    viper.GetString("db-dsn"),
	})
	if err != nil {
		return err
	}
	defer records.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	if viper.GetBool("check") {
		state, err := records.InspectSchema(ctx)
		if err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		missing := schema.Missing(state, recordstore.Expected)
		if len(missing) > 0 {
			return fmt.Errorf("missing: %s", strings.Join(missing, ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema complete")
		return nil
	}

	report := schema.Reconcile(ctx, records, recordstore.Expected)
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if !report.OK() {
		return fmt.Errorf("reconciliation finished with %d error(s)", len(report.Errors))
	}
	return nil
}
