package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"

	"github.com/boddenberg/pf-ledger-go/internal/app"
	"github.com/boddenberg/pf-ledger-go/internal/config"
	"github.com/boddenberg/pf-ledger-go/internal/domain"
	"github.com/boddenberg/pf-ledger-go/internal/infra/observability"
)

var (
	successSymbol = "✓"
	errorSymbol   = "✗"
	infoSymbol    = "→"

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D787", Dark: "#00D787"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5FAFFF", Dark: "#5FAFFF"})
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

// Globals are flags shared by every command.
type Globals struct {
	EnvFile  string `help:"Dotenv file with ledger configuration." default:".env" type:"path"`
	LogLevel string `help:"Log level for diagnostics written to stderr." default:"warn" enum:"debug,info,warn,error"`
}

func (g *Globals) open() (*app.App, error) {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, observability.NewLogger(g.LogLevel))
}

type Commands struct {
	Sweep    SweepCmd    `cmd:"" help:"Materialize due recurring transactions and pay due auto-deduct charges."`
	Charges  ChargesCmd  `cmd:"" help:"Annual charge maintenance."`
	Islamic  IslamicCmd  `cmd:"" help:"Islamic obligation generation."`
	Calendar CalendarCmd `cmd:"" help:"Hijri calendar lookups."`
}

// ============================================================
// sweep
// ============================================================

type SweepCmd struct{}

func (cmd *SweepCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.Scheduler().RunOnce(context.Background())
	printBatch(ctx.Stdout, "recurring", report.Recurring)
	printBatch(ctx.Stdout, "auto-deduct", report.AutoDeduct)
	return nil
}

// ============================================================
// charges
// ============================================================

type ChargesCmd struct {
	NextYear ChargesNextYearCmd `cmd:"" help:"Create next year's occurrence of every recurring charge due this year."`
}

type ChargesNextYearCmd struct{}

func (cmd *ChargesNextYearCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Obligations.GenerateRecurringChargesForNextYear(context.Background())
	printSuccess(ctx.Stdout, fmt.Sprintf("%d generated, %d skipped", res.Generated, res.Skipped))
	printErrors(ctx.Stdout, res.Errors)
	return nil
}

// ============================================================
// islamic
// ============================================================

type IslamicCmd struct {
	Generate IslamicGenerateCmd `cmd:"" help:"Generate islamic charges for a Gregorian year."`
	Wipe     IslamicWipeCmd     `cmd:"" help:"Delete every generated islamic charge."`
}

type IslamicGenerateCmd struct {
	Year        int    `help:"Gregorian year (current year if 0)." default:"0"`
	Recommended string `help:"Whether recommended holidays are included: settings, include or exclude." default:"settings" enum:"settings,include,exclude"`
}

func (cmd *IslamicGenerateCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	bg := context.Background()
	settings, err := a.Islamic.GetSettings(bg)
	if err != nil {
		return err
	}
	switch cmd.Recommended {
	case "include":
		settings.IncludeRecommended = true
	case "exclude":
		settings.IncludeRecommended = false
	}
	year := cmd.Year
	if year == 0 {
		year = a.Ledger.Today().Year()
	}
	if err := a.SyncCalendar(bg); err != nil {
		printError(ctx.Stdout, "calendar sync incomplete: "+err.Error())
	}

	res, err := a.Islamic.GenerateChargesForYear(bg, year, *settings)
	if err != nil {
		return err
	}
	if res.Disabled {
		printInfof(ctx.Stdout, "islamic generation is disabled, nothing written")
		return nil
	}
	printSuccess(ctx.Stdout, fmt.Sprintf("%d: %d created, %d skipped", res.Year, res.Created, res.Skipped))
	printErrors(ctx.Stdout, res.Errors)
	return nil
}

type IslamicWipeCmd struct {
	Yes bool `help:"Confirm the deletion." short:"y"`
}

func (cmd *IslamicWipeCmd) Run(ctx *kong.Context, g *Globals) error {
	if !cmd.Yes {
		return fmt.Errorf("refusing to delete islamic charges without --yes")
	}
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.Islamic.DeleteAllIslamicCharges(context.Background())
	if err != nil {
		return err
	}
	printSuccess(ctx.Stdout, fmt.Sprintf("%d islamic charges deleted", deleted))
	return nil
}

// ============================================================
// calendar
// ============================================================

type CalendarCmd struct {
	Resolve   CalendarResolveCmd   `cmd:"" help:"Resolve a Hijri month/day to its Gregorian date in a year."`
	IsHoliday CalendarIsHolidayCmd `cmd:"" help:"Check whether a Gregorian date is an islamic holiday."`
	Holidays  CalendarHolidaysCmd  `cmd:"" help:"List the holiday catalog."`
}

type CalendarResolveCmd struct {
	Month int `help:"Hijri month (1-12)." required:""`
	Day   int `help:"Hijri day (1-30)." required:""`
	Year  int `help:"Gregorian year (current year if 0)." default:"0"`
}

func (cmd *CalendarResolveCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	year := cmd.Year
	if year == 0 {
		year = a.Ledger.Today().Year()
	}
	date, err := a.Calendar.Resolve(context.Background(), cmd.Month, cmd.Day, year)
	if err != nil {
		return err
	}
	name, err := a.Calendar.MonthName(cmd.Month)
	if err != nil {
		return err
	}
	printInfof(ctx.Stdout, "%d %s (%s) in %d → %s", cmd.Day, name.Latin, name.Native, year, date.Format(domain.DateLayout))
	return nil
}

type CalendarIsHolidayCmd struct {
	Date string `arg:"" help:"Gregorian date, YYYY-MM-DD."`
}

func (cmd *CalendarIsHolidayCmd) Run(ctx *kong.Context, g *Globals) error {
	date, err := domain.ParseDate(cmd.Date)
	if err != nil {
		return err
	}
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	match, err := a.Calendar.IsHoliday(context.Background(), date)
	if err != nil {
		return err
	}
	if !match.IsHoliday {
		printInfof(ctx.Stdout, "%s is not an islamic holiday", cmd.Date)
		return nil
	}
	printSuccess(ctx.Stdout, fmt.Sprintf("%s is %s (%s)", cmd.Date, match.Holiday.Name, match.Holiday.NativeName))
	return nil
}

type CalendarHolidaysCmd struct{}

func (cmd *CalendarHolidaysCmd) Run(ctx *kong.Context, g *Globals) error {
	a, err := g.open()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, h := range a.Calendar.Holidays() {
		_, _ = fmt.Fprintf(ctx.Stdout, "%-22s %02d/%02d  %-11s %s\n",
			labelStyle.Render(h.ID), h.HijriDay, h.HijriMonth, h.Type, h.DefaultAmount.StringFixed(2))
	}
	return nil
}

// ============================================================
// Output helpers
// ============================================================

func printBatch(w io.Writer, label string, res *domain.BatchResult) {
	printSuccess(w, fmt.Sprintf("%s %d processed, %d skipped", labelStyle.Render(label+":"), res.Processed, res.Skipped))
	printErrors(w, res.Errors)
}

func printErrors(w io.Writer, errs []string) {
	for _, e := range errs {
		printError(w, e)
	}
}

func printSuccess(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		successStyle.Render(successSymbol),
		message,
	)
}

func printError(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		errorStyle.Render(errorSymbol),
		errorStyle.Render(strings.TrimSpace(message)),
	)
}

func printInfof(w io.Writer, format string, args ...interface{}) {
	formatted := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(w, "%s %s\n",
		infoStyle.Render(infoSymbol),
		formatted,
	)
}
