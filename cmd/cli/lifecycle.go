package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// lifecycleCmd represents the root command for key lifecycle records.
// lifecycleCmd 代表密钥生命周期记录相关操作的根命令。
var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Inspect the key lifecycle records kept by the postgres store",
}

// lifecycleReportCmd reads key_lifecycle_events directly from the database.
var lifecycleReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the creation and removal history of a realm's keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbURL, _ := cmd.Flags().GetString("db-url")
		if dbURL == "" {
			return fmt.Errorf("db-url flag is required")
		}
		tenant, _ := cmd.Flags().GetString("realm")

		ctx := cmd.Context()
		dbpool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		defer dbpool.Close()

		query := `SELECT tenant_id, key_id, event_type, COALESCE(algorithm, ''), priority, event_timestamp
			FROM key_lifecycle_events`
		var queryArgs []interface{}
		if tenant != "" {
			query += ` WHERE tenant_id = $1`
			queryArgs = append(queryArgs, tenant)
		}
		query += ` ORDER BY event_timestamp ASC`

		rows, err := dbpool.Query(ctx, query, queryArgs...)
		if err != nil {
			return fmt.Errorf("failed to query key_lifecycle_events: %w", err)
		}
		defer rows.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tREALM\tKID\tEVENT\tALG\tPRIORITY")
		for rows.Next() {
			var (
				tenantID, keyID, eventType, algorithm string
				priority                              int64
				ts                                    time.Time
			)
			if err := rows.Scan(&tenantID, &keyID, &eventType, &algorithm, &priority, &ts); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", ts.UTC().Format(time.RFC3339), tenantID, keyID, eventType, algorithm, priority)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return w.Flush()
	},
}

func init() {
	lifecycleReportCmd.Flags().String("db-url", os.Getenv("REALMKEYS_DB_URL"), "Database connection URL")
	lifecycleReportCmd.Flags().String("realm", "", "Only report this realm")

	lifecycleCmd.AddCommand(lifecycleReportCmd)
	rootCmd.AddCommand(lifecycleCmd)
}
