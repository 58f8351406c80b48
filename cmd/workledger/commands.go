package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mtorell/workledger/internal/config"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a job entry",
	Long: `Add a job entry to the ledger.

Examples:
  workledger add --date 2026-08-20 --name "Kitchen remodel" --type carpentry --hours 6.5 --pay 520
  workledger add --date 2026-08-21 --name "Logo draft" --type design --hours 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		name, _ := cmd.Flags().GetString("name")
		jobType, _ := cmd.Flags().GetString("type")
		hours, _ := cmd.Flags().GetFloat64("hours")

		req := map[string]any{
			"date":         date,
			"job_name":     name,
			"job_type":     jobType,
			"hours_worked": hours,
		}
		if cmd.Flags().Changed("pay") {
			pay, _ := cmd.Flags().GetFloat64("pay")
			req["pay"] = pay
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post("/jobs", req)
		if err != nil {
			return err
		}

		var job struct {
			ID int64 `json:"id"`
		}
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		printSuccess("Added job %d", job.ID)
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List job entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, flag := range []struct{ name, param string }{
			{"search", "search"},
			{"type", "job_type"},
			{"from", "date_from"},
			{"to", "date_to"},
			{"sort", "sort"},
		} {
			if v, _ := cmd.Flags().GetString(flag.name); v != "" {
				q.Set(flag.param, v)
			}
		}
		if predict, _ := cmd.Flags().GetBool("predict"); predict {
			q.Set("predict", "true")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/jobs?" + q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Jobs []struct {
				ID           int64    `json:"id"`
				Date         string   `json:"date"`
				JobName      string   `json:"job_name"`
				JobType      string   `json:"job_type"`
				HoursWorked  float64  `json:"hours_worked"`
				Pay          *float64 `json:"pay"`
				PredictedPay *float64 `json:"predicted_pay"`
			} `json:"jobs"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("no entries")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tNAME\tTYPE\tHOURS\tPAY\tPREDICTED")
		for _, j := range result.Jobs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				j.ID, j.Date, j.JobName, j.JobType, j.HoursWorked,
				money(j.Pay), money(j.PredictedPay))
		}
		return w.Flush()
	},
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", *v)
}

// --- rm ---

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove job entries by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", arg)
			}
			ids = append(ids, id)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete("/jobs", map[string]any{"ids": ids})
		if err != nil {
			return err
		}

		var result struct {
			Deleted int64 `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %d entries", result.Deleted)
		return nil
	},
}

// --- predict ---

var predictCmd = &cobra.Command{
	Use:   "predict <id>...",
	Short: "Predict pay for job entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", arg)
			}
			ids = append(ids, id)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post("/predictions", map[string]any{"ids": ids})
		if err != nil {
			return err
		}

		var result struct {
			Predictions map[string]float64 `json:"predictions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, id := range ids {
			if v, ok := result.Predictions[strconv.FormatInt(id, 10)]; ok {
				fmt.Printf("%d\t$%.2f\n", id, v)
			} else {
				printWarning("no such entry: %d", id)
			}
		}
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show overall pay statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/stats")
		if err != nil {
			return err
		}

		var s struct {
			Jobs            int64   `json:"jobs"`
			AvgWeeklyPay    float64 `json:"avg_weekly_pay"`
			MedianWeeklyPay float64 `json:"median_weekly_pay"`
			AvgPayPerJob    float64 `json:"avg_pay_per_job"`
			MedianPayPerJob float64 `json:"median_pay_per_job"`
			HourlyRate      float64 `json:"hourly_rate"`
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		printStatus("Entries", "%d", s.Jobs)
		printStatus("Average weekly pay", "$%.2f", s.AvgWeeklyPay)
		printStatus("Median weekly pay", "$%.2f", s.MedianWeeklyPay)
		printStatus("Average pay per job", "$%.2f", s.AvgPayPerJob)
		printStatus("Median pay per job", "$%.2f", s.MedianPayPerJob)
		printStatus("Equivalent hourly rate", "$%.2f/hr", s.HourlyRate)
		return nil
	},
}

// --- import / export ---

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import job entries from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening file: %w", err)
		}
		defer f.Close()

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.do("POST", "/jobs/import", "text/csv", f)
		if err != nil {
			return err
		}

		var result struct {
			Imported int `json:"imported"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d entries", result.Imported)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file.csv]",
	Short: "Export job entries (with predicted pay) to CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get("/jobs/export")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if _, err := io.Copy(out, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		if len(args) == 1 {
			printSuccess("Exported to %s", args[0])
		}
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every job entry and reset the prediction model",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Print("Delete ALL entries? This cannot be undone. Type 'yes' to continue: ")
			var answer string
			fmt.Scanln(&answer)
			if strings.TrimSpace(answer) != "yes" {
				printWarning("aborted")
				return nil
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post("/maintenance/clear", nil)
		if err != nil {
			return err
		}

		var result struct {
			Deleted int64 `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared %d entries", result.Deleted)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tENV OVERRIDE")
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", k.Key, k.Value, k.EnvVar)
		}
		return w.Flush()
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s", args[0])
		return nil
	},
}

func init() {
	addCmd.Flags().String("date", "", "job date (YYYY-MM-DD)")
	addCmd.Flags().String("name", "", "job name")
	addCmd.Flags().String("type", "", "job type")
	addCmd.Flags().Float64("hours", 0, "hours worked")
	addCmd.Flags().Float64("pay", 0, "pay received (omit if not yet paid)")
	addCmd.MarkFlagRequired("date")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("type")
	addCmd.MarkFlagRequired("hours")

	listCmd.Flags().String("search", "", "substring match on job name")
	listCmd.Flags().String("type", "", "filter by job type")
	listCmd.Flags().String("from", "", "earliest job date (YYYY-MM-DD)")
	listCmd.Flags().String("to", "", "latest job date (YYYY-MM-DD)")
	listCmd.Flags().String("sort", "", "sort key (date_desc, date_asc, name_asc, name_desc, type_asc, type_desc, hours_asc, hours_desc, pay_asc, pay_desc)")
	listCmd.Flags().Bool("predict", false, "include the predicted pay column")

	clearCmd.Flags().Bool("force", false, "skip the confirmation prompt")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
