package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/edilcheck/edilcheck/internal/dates"
	"github.com/edilcheck/edilcheck/internal/types"
	"github.com/edilcheck/edilcheck/internal/ui"
	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:     "workers",
	GroupID: "records",
	Short:   "Manage workers",
}

var sitesCmd = &cobra.Command{
	Use:     "sites",
	GroupID: "records",
	Short:   "Manage job sites",
}

var entriesCmd = &cobra.Command{
	Use:     "entries",
	GroupID: "records",
	Short:   "Manage time entries",
}

var paymentsCmd = &cobra.Command{
	Use:     "payments",
	GroupID: "records",
	Short:   "Manage weekly payments",
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		fatalf("invalid id %q", arg)
	}
	return id
}

func money(v float64) string {
	return fmt.Sprintf("€ %.2f", v)
}

func hours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "h"
}

// stringFlag returns a pointer to the flag value when it was set.
func stringFlag(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func floatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func intFlag(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

// ---- workers ----

var workersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		workers, err := openService().Workers(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(workers)
			return
		}
		rows := make([][]string, 0, len(workers))
		for _, w := range workers {
			rows = append(rows, []string{
				strconv.FormatInt(w.ID, 10), w.Name, w.Role, w.Phone, w.Email, string(w.Status), money(w.HourlyRate),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Role", "Phone", "Email", "Status", "Rate"}, rows))
	},
}

var workersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a worker",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		w := types.Worker{}
		w.Name, _ = cmd.Flags().GetString("name")
		w.Role, _ = cmd.Flags().GetString("role")
		w.Phone, _ = cmd.Flags().GetString("phone")
		w.Email, _ = cmd.Flags().GetString("email")
		status, _ := cmd.Flags().GetString("status")
		w.Status = types.WorkerStatus(status)
		w.HourlyRate, _ = cmd.Flags().GetFloat64("rate")

		created, err := openService().AddWorker(ctx, w)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Printf("%s Added worker %d: %s\n", ui.RenderPass("✓"), created.ID, created.Name)
	},
}

var workersUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a worker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		patch := types.WorkerPatch{
			Name:       stringFlag(cmd, "name"),
			Role:       stringFlag(cmd, "role"),
			Phone:      stringFlag(cmd, "phone"),
			Email:      stringFlag(cmd, "email"),
			HourlyRate: floatFlag(cmd, "rate"),
		}
		if s := stringFlag(cmd, "status"); s != nil {
			patch.Status = types.Ptr(types.WorkerStatus(*s))
		}

		updated, err := openService().UpdateWorker(ctx, parseID(args[0]), patch)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(updated)
			return
		}
		fmt.Printf("%s Updated worker %d\n", ui.RenderPass("✓"), updated.ID)
	},
}

var workersDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a worker with their time entries and payments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := parseID(args[0])
		if err := openService().DeleteWorker(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted worker %d\n", ui.RenderPass("✓"), id)
	},
}

// ---- sites ----

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job sites",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		sites, err := openService().Sites(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(sites)
			return
		}
		rows := make([][]string, 0, len(sites))
		for _, s := range sites {
			rows = append(rows, []string{
				strconv.FormatInt(s.ID, 10), s.Name, s.Owner, s.Address, string(s.Status), s.StartDate, s.EstimatedEnd,
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Name", "Owner", "Address", "Status", "Start", "Est. end"}, rows))
	},
}

var sitesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a job site",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s := types.Site{}
		s.Name, _ = cmd.Flags().GetString("name")
		s.Owner, _ = cmd.Flags().GetString("owner")
		s.Address, _ = cmd.Flags().GetString("address")
		status, _ := cmd.Flags().GetString("status")
		s.Status = types.SiteStatus(status)
		s.StartDate = resolveDateFlag(cmd, "start")
		s.EstimatedEnd = resolveDateFlag(cmd, "end")

		created, err := openService().AddSite(ctx, s)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Printf("%s Added site %d: %s\n", ui.RenderPass("✓"), created.ID, created.Name)
	},
}

var sitesUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a job site",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		patch := types.SitePatch{
			Name:    stringFlag(cmd, "name"),
			Owner:   stringFlag(cmd, "owner"),
			Address: stringFlag(cmd, "address"),
		}
		if s := stringFlag(cmd, "status"); s != nil {
			patch.Status = types.Ptr(types.SiteStatus(*s))
		}
		if cmd.Flags().Changed("start") {
			patch.StartDate = types.Ptr(resolveDateFlag(cmd, "start"))
		}
		if cmd.Flags().Changed("end") {
			patch.EstimatedEnd = types.Ptr(resolveDateFlag(cmd, "end"))
		}

		updated, err := openService().UpdateSite(ctx, parseID(args[0]), patch)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(updated)
			return
		}
		fmt.Printf("%s Updated site %d\n", ui.RenderPass("✓"), updated.ID)
	},
}

var sitesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a job site with its time entries",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := parseID(args[0])
		if err := openService().DeleteSite(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted site %d\n", ui.RenderPass("✓"), id)
	},
}

// ---- time entries ----

// resolveDateFlag resolves a date flag such as "yesterday"; an unset or
// empty flag stays empty.
func resolveDateFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return ""
	}
	d, err := dates.Resolve(v, time.Now())
	if err != nil {
		fatalf("%v", err)
	}
	return d
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List time entries",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		entries, err := openService().TimeEntries(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(entries)
			return
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10), e.Date, e.WorkerName, e.SiteName,
				e.StartTime + "-" + e.EndTime, hours(e.TotalHours), string(e.Status),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Date", "Worker", "Site", "Time", "Hours", "Status"}, rows))
	},
}

var entriesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record hours worked",
	Long: `Record the hours a worker spent on a site. --date accepts YYYY-MM-DD,
DD/MM/YYYY or phrases like "yesterday" and "last monday"; it defaults to today.
Total hours are computed from --start and --end unless --hours is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		e := types.TimeEntry{}
		e.WorkerID, _ = cmd.Flags().GetInt64("worker")
		e.SiteID, _ = cmd.Flags().GetInt64("site")
		dateArg, _ := cmd.Flags().GetString("date")
		date, err := dates.Resolve(dateArg, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		e.Date = date
		e.StartTime, _ = cmd.Flags().GetString("start")
		e.EndTime, _ = cmd.Flags().GetString("end")
		e.TotalHours, _ = cmd.Flags().GetFloat64("hours")
		status, _ := cmd.Flags().GetString("status")
		e.Status = types.EntryStatus(status)

		created, err := openService().AddTimeEntry(ctx, e)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Printf("%s Recorded %s for %s at %s on %s\n", ui.RenderPass("✓"),
			hours(created.TotalHours), created.WorkerName, created.SiteName, created.Date)
	},
}

var entriesUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a time entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		patch := types.TimeEntryPatch{
			WorkerID:   intFlag(cmd, "worker"),
			SiteID:     intFlag(cmd, "site"),
			StartTime:  stringFlag(cmd, "start"),
			EndTime:    stringFlag(cmd, "end"),
			TotalHours: floatFlag(cmd, "hours"),
		}
		if cmd.Flags().Changed("date") {
			patch.Date = types.Ptr(resolveDateFlag(cmd, "date"))
		}
		if s := stringFlag(cmd, "status"); s != nil {
			patch.Status = types.Ptr(types.EntryStatus(*s))
		}

		updated, err := openService().UpdateTimeEntry(ctx, parseID(args[0]), patch)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(updated)
			return
		}
		fmt.Printf("%s Updated time entry %d\n", ui.RenderPass("✓"), updated.ID)
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a time entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := parseID(args[0])
		if err := openService().DeleteTimeEntry(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted time entry %d\n", ui.RenderPass("✓"), id)
	},
}

// ---- payments ----

var paymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payments",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		payments, err := openService().Payments(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(payments)
			return
		}
		rows := make([][]string, 0, len(payments))
		for _, p := range payments {
			status := string(p.Status)
			if p.Status == types.PaymentDue {
				status = ui.RenderWarn(status)
			}
			rows = append(rows, []string{
				strconv.FormatInt(p.ID, 10), p.Week, p.WorkerName, hours(p.Hours), hours(p.Overtime),
				money(p.TotalAmount), status, p.PaidDate, p.Method,
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Week", "Worker", "Hours", "Overtime", "Total", "Status", "Paid", "Method"}, rows))
	},
}

var paymentsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a weekly payment",
	Long: `Add a payment for a worker. --week accepts YYYY-Www or any date --date
would accept; it defaults to the current week. The hourly rate defaults to the
worker's and the total to (hours + overtime) x rate.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()
		s := openService()

		p := types.Payment{}
		p.WorkerID, _ = cmd.Flags().GetInt64("worker")
		weekArg, _ := cmd.Flags().GetString("week")
		week, err := dates.ResolveWeek(weekArg, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		p.Week = week
		p.Hours, _ = cmd.Flags().GetFloat64("hours")
		p.Overtime, _ = cmd.Flags().GetFloat64("overtime")
		p.HourlyRate, _ = cmd.Flags().GetFloat64("rate")
		p.TotalAmount, _ = cmd.Flags().GetFloat64("total")
		status, _ := cmd.Flags().GetString("status")
		p.Status = types.PaymentStatus(status)
		p.PaidDate = resolveDateFlag(cmd, "paid")
		p.Method, _ = cmd.Flags().GetString("method")

		if p.HourlyRate == 0 {
			workers, err := s.Workers(ctx)
			if err != nil {
				fatalf("%v", err)
			}
			for _, w := range workers {
				if w.ID == p.WorkerID {
					p.HourlyRate = w.HourlyRate
				}
			}
		}

		created, err := s.AddPayment(ctx, p)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(created)
			return
		}
		fmt.Printf("%s Added payment %d: %s to %s for %s\n", ui.RenderPass("✓"),
			created.ID, money(created.TotalAmount), created.WorkerName, created.Week)
	},
}

var paymentsUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a payment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		patch := types.PaymentPatch{
			WorkerID:    intFlag(cmd, "worker"),
			Hours:       floatFlag(cmd, "hours"),
			Overtime:    floatFlag(cmd, "overtime"),
			HourlyRate:  floatFlag(cmd, "rate"),
			TotalAmount: floatFlag(cmd, "total"),
			Method:      stringFlag(cmd, "method"),
		}
		if cmd.Flags().Changed("week") {
			weekArg, _ := cmd.Flags().GetString("week")
			week, err := dates.ResolveWeek(weekArg, time.Now())
			if err != nil {
				fatalf("%v", err)
			}
			patch.Week = &week
		}
		if cmd.Flags().Changed("paid") {
			patch.PaidDate = types.Ptr(resolveDateFlag(cmd, "paid"))
		}
		if s := stringFlag(cmd, "status"); s != nil {
			patch.Status = types.Ptr(types.PaymentStatus(*s))
		}

		updated, err := openService().UpdatePayment(ctx, parseID(args[0]), patch)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(updated)
			return
		}
		fmt.Printf("%s Updated payment %d\n", ui.RenderPass("✓"), updated.ID)
	},
}

var paymentsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a payment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		id := parseID(args[0])
		if err := openService().DeletePayment(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted payment %d\n", ui.RenderPass("✓"), id)
	},
}

func init() {
	for _, c := range []*cobra.Command{workersAddCmd, workersUpdateCmd} {
		c.Flags().String("name", "", "Full name")
		c.Flags().String("role", "", "Role on site")
		c.Flags().String("phone", "", "Phone number")
		c.Flags().String("email", "", "Email address")
		c.Flags().String("status", "", "Attivo, In Permesso or Inattivo (default Attivo)")
		c.Flags().Float64("rate", 0, "Hourly rate in euro")
	}
	workersCmd.AddCommand(workersListCmd, workersAddCmd, workersUpdateCmd, workersDeleteCmd)

	for _, c := range []*cobra.Command{sitesAddCmd, sitesUpdateCmd} {
		c.Flags().String("name", "", "Site name")
		c.Flags().String("owner", "", "Client or owner")
		c.Flags().String("address", "", "Address")
		c.Flags().String("status", "", "Attivo, In Pausa or Completato (default Attivo)")
		c.Flags().String("start", "", "Start date")
		c.Flags().String("end", "", "Estimated end date")
	}
	sitesCmd.AddCommand(sitesListCmd, sitesAddCmd, sitesUpdateCmd, sitesDeleteCmd)

	for _, c := range []*cobra.Command{entriesAddCmd, entriesUpdateCmd} {
		c.Flags().Int64("worker", 0, "Worker ID")
		c.Flags().Int64("site", 0, "Site ID")
		c.Flags().String("date", "", "Day worked (default today)")
		c.Flags().String("start", "", "Start time HH:MM")
		c.Flags().String("end", "", "End time HH:MM")
		c.Flags().Float64("hours", 0, "Total hours (default end - start)")
		c.Flags().String("status", "", "Confermato or In Attesa (default In Attesa)")
	}
	entriesCmd.AddCommand(entriesListCmd, entriesAddCmd, entriesUpdateCmd, entriesDeleteCmd)

	for _, c := range []*cobra.Command{paymentsAddCmd, paymentsUpdateCmd} {
		c.Flags().Int64("worker", 0, "Worker ID")
		c.Flags().String("week", "", "ISO week YYYY-Www or a date in it (default this week)")
		c.Flags().Float64("hours", 0, "Regular hours")
		c.Flags().Float64("overtime", 0, "Overtime hours")
		c.Flags().Float64("rate", 0, "Hourly rate (default the worker's)")
		c.Flags().Float64("total", 0, "Total amount (default computed)")
		c.Flags().String("status", "", "Da Pagare or Pagato (default Da Pagare)")
		c.Flags().String("paid", "", "Date paid")
		c.Flags().String("method", "", "Payment method")
	}
	paymentsCmd.AddCommand(paymentsListCmd, paymentsAddCmd, paymentsUpdateCmd, paymentsDeleteCmd)

	rootCmd.AddCommand(workersCmd, sitesCmd, entriesCmd, paymentsCmd)
}
