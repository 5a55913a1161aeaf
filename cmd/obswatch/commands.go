package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/medobsmind/obswatch/internal/alert"
	"github.com/medobsmind/obswatch/internal/format"
	"github.com/medobsmind/obswatch/internal/guardrail"
	"github.com/medobsmind/obswatch/internal/reporter"
	"github.com/medobsmind/obswatch/internal/score"
	"github.com/medobsmind/obswatch/internal/store"
	"github.com/medobsmind/obswatch/internal/vitals"
)

// optFloat is a flag that records whether it was set.
type optFloat struct{ v *float64 }

func (f *optFloat) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatFloat(*f.v, 'f', -1, 64)
}

func (f *optFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.v = &v
	return nil
}

// confidenceFlag is an optFloat restricted to [0, 1].
type confidenceFlag struct{ optFloat }

func (f *confidenceFlag) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("confidence must be within [0, 1], got %s", s)
	}
	f.v = &v
	return nil
}

// listFlag collects a repeated string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, "; ") }

func (l *listFlag) Set(s string) error {
	*l = append(*l, s)
	return nil
}

// vitalsFlags registers the per-parameter flags shared by score and check.
type vitalsFlags struct {
	rr, spo2, temp, sbp, hr optFloat
	o2                      *bool
	avpu                    *string
	copd                    *bool
}

func addVitalsFlags(fs *flag.FlagSet) *vitalsFlags {
	vf := &vitalsFlags{}
	fs.Var(&vf.rr, "rr", "respiratory rate (breaths/min)")
	fs.Var(&vf.spo2, "spo2", "oxygen saturation (%)")
	fs.Var(&vf.temp, "temp", "temperature (°C)")
	fs.Var(&vf.sbp, "sbp", "systolic blood pressure (mmHg)")
	fs.Var(&vf.hr, "hr", "heart rate (beats/min)")
	vf.o2 = fs.Bool("o2", false, "patient is on supplemental oxygen")
	vf.avpu = fs.String("avpu", "", "consciousness level (A, V, P, U)")
	vf.copd = fs.Bool("copd", false, "use SpO2 scale 2")
	return vf
}

func (vf *vitalsFlags) snapshot() (vitals.Snapshot, error) {
	v := vitals.Snapshot{
		RespiratoryRate:    vf.rr.v,
		SpO2:               vf.spo2.v,
		Temperature:        vf.temp.v,
		SystolicBP:         vf.sbp.v,
		HeartRate:          vf.hr.v,
		SupplementalOxygen: *vf.o2,
		UseCOPDScale:       *vf.copd,
	}
	if *vf.avpu != "" {
		c, err := vitals.ParseConsciousness(*vf.avpu)
		if err != nil {
			return v, err
		}
		v.Consciousness = c
	}
	return v, v.Validate()
}

func (vf *vitalsFlags) anySet() bool {
	return vf.rr.v != nil || vf.spo2.v != nil || vf.temp.v != nil || vf.sbp.v != nil ||
		vf.hr.v != nil || *vf.avpu != ""
}

// source returns the snapshot to cross-check text against, or nil when no
// reading was given.
func (vf *vitalsFlags) source() (*vitals.Snapshot, error) {
	if !vf.anySet() {
		return nil, nil
	}
	v, err := vf.snapshot()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseViolations reads a comma-separated list of violation kinds.
func parseViolations(s string) ([]guardrail.Violation, error) {
	var out []guardrail.Violation
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, ok := guardrail.ParseViolation(part)
		if !ok {
			return nil, fmt.Errorf("unknown violation kind %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// filterByTier keeps alerts whose recorded score falls in tier.
func filterByTier(alerts []*alert.Alert, tier score.Tier) []*alert.Alert {
	var out []*alert.Alert
	for _, a := range alerts {
		if a.Score != nil && score.TierFor(*a.Score) == tier {
			out = append(out, a)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("error encoding output: %v", err)
	}
}

// --- score subcommand ---

func runScore(args []string) {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	vf := addVitalsFlags(fs)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	fs.Parse(args)

	v, err := vf.snapshot()
	if err != nil {
		fatalf("invalid vitals: %v", err)
	}

	res := score.Calculate(v, false)
	if *asJSON {
		printJSON(res)
		return
	}

	fmt.Printf("NEWS2:        %d (%s risk)\n", res.Total, res.Tier)
	fmt.Printf("Reading:      %s\n", score.Interpret(res.Total))
	fmt.Printf("Escalate:     %t\n", res.RequiresEscalation)
	if res.RedFlag() {
		fmt.Println("Red flag:     single parameter scored 3")
	}
	fmt.Printf("Severity:     %s\n", alert.SeverityForScore(res).Label())
	if !v.Complete() {
		fmt.Printf("Recorded:     %d of 7 parameters\n", v.Recorded())
	}
	fmt.Println("Recommended:")
	for _, r := range res.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
}

// --- check / soften subcommands ---

func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	text := fs.String("text", "", "text to check")
	var confidence confidenceFlag
	fs.Var(&confidence, "confidence", "generator confidence in [0, 1]")
	failOn := fs.String("fail-on", "", "comma-separated violation kinds that make the command exit 2")
	vf := addVitalsFlags(fs)
	fs.Parse(args)

	deny, err := parseViolations(*failOn)
	if err != nil {
		fatalf("invalid -fail-on: %v", err)
	}

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	source, err := vf.source()
	if err != nil {
		fatalf("invalid vitals: %v", err)
	}

	res := newPipeline(cfg, log, nil).Check(*text, source, confidence.v)
	printJSON(struct {
		Safe           bool                  `json:"safe"`
		Violations     []guardrail.Violation `json:"violations"`
		Text           string                `json:"text"`
		Confidence     guardrail.Confidence  `json:"confidence"`
		RequiresReview bool                  `json:"requires_review"`
		Explanation    string                `json:"explanation"`
	}{res.Safe, res.Violations, res.Text(), res.Confidence, res.RequiresReview, res.Explanation})

	for _, v := range deny {
		if res.Has(v) {
			log.Sync()
			os.Exit(2)
		}
	}
}

func runSoften(args []string) {
	fs := flag.NewFlagSet("soften", flag.ExitOnError)
	text := fs.String("text", "", "text to soften")
	fs.Parse(args)

	fmt.Println(guardrail.Soften(*text))
}

// --- explain subcommand ---

func runExplain(args []string) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "alert ID")
	text := fs.String("text", "", "explanatory text to attach")
	var confidence confidenceFlag
	fs.Var(&confidence, "confidence", "generator confidence in [0, 1]")
	vf := addVitalsFlags(fs)
	fs.Parse(args)

	if *id == "" {
		fatalf("error: -id is required")
	}
	source, err := vf.source()
	if err != nil {
		fatalf("invalid vitals: %v", err)
	}

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	db := openDB(cfg, log)
	defer db.Close()

	p := newPipeline(cfg, log, nil)
	var res guardrail.Result
	a, err := db.Transition(*id, func(a *alert.Alert) error {
		var err error
		res, err = p.Explain(a, *text, source, confidence.v)
		return err
	})
	if err != nil {
		fatalf("error attaching explanation: %v", err)
	}

	fmt.Printf("Attached to %s (%s)\n", a.ID, res.Explanation)
	if a.ExplanationNeedsReview {
		fmt.Println("Flagged for clinician review.")
	}
}

// --- raise subcommand ---

func runRaise(args []string) {
	fs := flag.NewFlagSet("raise", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	patient := fs.String("patient", "", "patient ID")
	typ := fs.String("type", string(alert.TypeClinicalObservation), "alert type")
	severity := fs.String("severity", "", "critical, high, medium or low")
	title := fs.String("title", "", "alert title")
	message := fs.String("message", "", "alert message")
	var recs listFlag
	fs.Var(&recs, "recommend", "recommended action (repeatable)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	a, err := newPipeline(cfg, log, nil).Raise(*patient, *typ, *severity, *title, *message, recs)
	if err != nil {
		fatalf("error: %v", err)
	}

	db := openDB(cfg, log)
	defer db.Close()

	if err := db.Insert(a); err != nil {
		fatalf("error storing alert: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	notify(ctx, a, db, reporter.NewNtfy(cfg, log), cfg, nil, log)

	printAlerts([]*alert.Alert{a})
}

// --- alerts subcommand ---

func runAlerts(args []string) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "24h", "time window (e.g. 12h, 7d)")
	patient := fs.String("patient", "", "filter by patient ID")
	severity := fs.String("severity", "", "filter by severity")
	status := fs.String("status", "", "filter by status")
	tier := fs.String("tier", "", "filter by NEWS2 risk tier (low, medium, high)")
	active := fs.Bool("active", false, "show unresolved alerts by severity, ignoring -last")
	limit := fs.Int("limit", 50, "max alerts to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	db := openDB(cfg, log)
	defer db.Close()

	var alerts []*alert.Alert
	var err error
	if *active {
		alerts, err = db.Active(*patient)
	} else {
		window, perr := format.ParseDuration(*last)
		if perr != nil {
			fatalf("invalid -last value %q: %v", *last, perr)
		}
		f := store.QueryFilter{
			Since:     time.Now().Add(-window),
			PatientID: *patient,
			Limit:     *limit,
		}
		if *severity != "" {
			if f.Severity, err = alert.ParseSeverity(*severity); err != nil {
				fatalf("%v", err)
			}
		}
		if *status != "" {
			if f.Status, err = alert.ParseStatus(*status); err != nil {
				fatalf("%v", err)
			}
		}
		alerts, err = db.Query(f)
	}
	if err != nil {
		fatalf("query error: %v", err)
	}
	if *tier != "" {
		tr, ok := score.ParseTier(strings.ToLower(*tier))
		if !ok {
			fatalf("invalid -tier value %q", *tier)
		}
		alerts = filterByTier(alerts, tr)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts found.")
		return
	}
	printAlerts(alerts)
}

func printAlerts(alerts []*alert.Alert) {
	for _, a := range alerts {
		ts := a.TriggeredAt.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %-8s %-12s %s  %s\n", ts, a.Severity, a.Status, a.PatientID, a.Title)
		fmt.Printf("             ID: %s (%s ago)\n", a.ID, format.Duration(time.Since(a.TriggeredAt)))
		if a.Escalated && a.Escalation != nil {
			fmt.Printf("             Escalated to %s by %s\n", a.Escalation.To, a.Escalation.By)
		}
		if a.Explanation != "" {
			lines := strings.SplitN(a.Explanation, "\n", 2)
			fmt.Printf("             %s\n", lines[0])
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d alert(s)\n", len(alerts))
}

// --- lifecycle subcommands ---

func runAck(args []string) {
	fs := flag.NewFlagSet("ack", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "alert ID")
	by := fs.String("by", "", "acknowledging clinician")
	notes := fs.String("notes", "", "acknowledgment notes")
	fs.Parse(args)

	runTransition(*configPath, *id, func(lc lifecycle) (*alert.Alert, error) {
		return lc.Acknowledge(*id, *by, *notes)
	})
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "alert ID")
	by := fs.String("by", "", "resolving clinician")
	notes := fs.String("notes", "", "resolution notes (required)")
	outcome := fs.String("outcome", "", "true_positive, false_positive, clinical_intervention or self_resolved")
	fs.Parse(args)

	o, err := alert.ParseOutcome(*outcome)
	if err != nil {
		fatalf("%v", err)
	}
	runTransition(*configPath, *id, func(lc lifecycle) (*alert.Alert, error) {
		return lc.Resolve(*id, *by, *notes, o)
	})
}

func runEscalate(args []string) {
	fs := flag.NewFlagSet("escalate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "alert ID")
	by := fs.String("by", "", "escalating clinician")
	to := fs.String("to", "", "escalation target (e.g. outreach team)")
	reason := fs.String("reason", "", "reason for escalation")
	fs.Parse(args)

	runTransition(*configPath, *id, func(lc lifecycle) (*alert.Alert, error) {
		return lc.Escalate(*id, *by, *reason, *to)
	})
}

type lifecycle interface {
	Acknowledge(id, by, notes string) (*alert.Alert, error)
	Resolve(id, by, notes string, outcome alert.Outcome) (*alert.Alert, error)
	Escalate(id, by, reason, to string) (*alert.Alert, error)
}

func runTransition(configPath, id string, fn func(lc lifecycle) (*alert.Alert, error)) {
	if id == "" {
		fatalf("error: -id is required")
	}

	cfg := loadConfig(configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	db := openDB(cfg, log)
	defer db.Close()

	a, err := fn(newPipeline(cfg, log, nil).Lifecycle(db))
	if err != nil {
		fatalf("error: %v", err)
	}
	printAlerts([]*alert.Alert{a})
}

// --- stats subcommand ---

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "24h", "time window for the summary")
	send := fs.Bool("send", false, "send summary via ntfy (otherwise print to stdout)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	db := openDB(cfg, log)
	defer db.Close()

	window, err := format.ParseDuration(*last)
	if err != nil {
		fatalf("invalid -last value: %v", err)
	}

	until := time.Now()
	since := until.Add(-window)

	alerts, err := db.Query(store.QueryFilter{Since: since, Until: until})
	if err != nil {
		fatalf("query error: %v", err)
	}

	summary := reporter.BuildSummary(cfg.Instance.Ward, alerts, since, until)
	body := reporter.FormatSummary(summary)

	if !*send {
		fmt.Print(body)
		if n, err := db.Count(); err == nil {
			fmt.Printf("\nDB alerts:     %d total\n", n)
			fmt.Printf("DB path:       %s\n", cfg.DBPath())
		}
		return
	}

	rep := reporter.NewNtfy(cfg, log)
	if !rep.Enabled() {
		fatalf("error: no ntfy URL configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title := reporter.FormatSummaryTitle(cfg.Instance.Ward, since, until)
	if err := rep.Send(ctx, title, body, "low", "bar_chart"); err != nil {
		fatalf("error sending summary: %v", err)
	}
	fmt.Println("Summary sent successfully.")
}

// --- administrative subcommands ---

func runPurge(args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	retention := fs.String("retention", "", "override db.retention (e.g. 30d)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	keep := cfg.DB.Retention.Duration
	if *retention != "" {
		d, err := format.ParseDuration(*retention)
		if err != nil {
			fatalf("invalid -retention value: %v", err)
		}
		keep = d
	}
	if keep <= 0 {
		fatalf("error: retention must be positive")
	}

	db := openDB(cfg, log)
	defer db.Close()

	n, err := db.Purge(keep)
	if err != nil {
		fatalf("error: %v", err)
	}
	fmt.Printf("Purged %d resolved alert(s) older than %s.\n", n, format.Duration(keep))
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	id := fs.String("id", "", "alert ID")
	fs.Parse(args)

	if *id == "" {
		fatalf("error: -id is required")
	}

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, "error")
	defer log.Sync()

	db := openDB(cfg, log)
	defer db.Close()

	if err := db.Delete(*id); err != nil {
		fatalf("error: %v", err)
	}
	fmt.Printf("Deleted alert %s.\n", *id)
}

func runTestNtfy(args []string) {
	fs := flag.NewFlagSet("test-ntfy", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	log := newLogger(cfg, cfg.Log.Level)
	defer log.Sync()

	rep := reporter.NewNtfy(cfg, log)
	if !rep.Enabled() {
		fatalf("error: ntfy.url not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := reporter.SampleAlert()
	title := reporter.FormatTitle(cfg.Instance.Ward, a)
	if err := rep.Send(ctx, title, reporter.FormatBody(a), cfg.NtfyPriority(string(a.Severity)),
		reporter.TagsForSeverity(a.Severity)); err != nil {
		fatalf("error sending test notification: %v", err)
	}
	fmt.Println("Test notification sent successfully.")
}
