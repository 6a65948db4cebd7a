package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/replay"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"golang.org/x/term"
)

func main() {
	format := flag.String("format", "auto", "Output format: auto, text or json")
	verbose := flag.Bool("v", false, "Log session internals to stderr")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: replay [flags] <scenario.yaml>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := zerolog.Nop()
	if *verbose {
		log = logger.Setup("debug", "pretty").Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	sc, err := replay.Load(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	signer := submission.NewSigner(cfg.ReportSigningSecret)
	res, err := replay.Run(sc, signer, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	if *format == "auto" {
		*format = "json"
		if term.IsTerminal(int(os.Stdout.Fd())) {
			*format = "text"
		}
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Report); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	case "text":
		printText(os.Stdout, sc, res, signer)
	default:
		fmt.Fprintf(os.Stderr, "replay: unknown format %q\n", *format)
		os.Exit(2)
	}
}

func printText(w io.Writer, sc *replay.Scenario, res *replay.Result, signer *submission.Signer) {
	r := res.Report
	fmt.Fprintf(w, "Scenario   %s\n", sc.Name)
	fmt.Fprintf(w, "Quiz       %s (%s)\n", sc.Quiz.Title, sc.Quiz.QuizID)
	fmt.Fprintf(w, "Elapsed    %s\n", res.Elapsed)
	fmt.Fprintf(w, "Score      %.2f / %.2f (%.2f%%)\n", r.Score, r.TotalMarks, r.Percentage)
	fmt.Fprintf(w, "Passed     %t\n", r.Passed)
	if r.IsAutoSubmit {
		fmt.Fprintf(w, "Submitted  automatically: %s\n", r.AutoSubmitReason)
	} else {
		fmt.Fprintln(w, "Submitted  manually")
	}

	a := r.Analytics
	fmt.Fprintf(w, "Focus      %.2f%%\n", a.FocusPercentage)
	fmt.Fprintf(w, "Counters   tab=%d suspicious=%d idle=%d audit_failures=%d\n",
		a.TabSwitchCount, a.SuspiciousActivityCount, a.IdleCount, a.FocusAuditFailures)

	fmt.Fprintln(w, "\nSecurity events")
	for _, ev := range r.SecurityEvents {
		fmt.Fprintf(w, "  %3d  +%-5s %-8s %-16s %s\n",
			ev.Sequence, offset(ev.Timestamp), ev.Severity, ev.Type, ev.Description)
	}

	fmt.Fprintln(w, "\nNotices")
	for _, n := range res.Notices {
		if n.Kind == model.NoticeTick {
			continue
		}
		fmt.Fprintf(w, "  +%-5s %-22s %s\n", offset(n.Timestamp), n.Kind, n.Message)
	}

	status := "ok"
	if _, err := submission.VerifyChain(r.SessionID, r.SecurityEvents); err != nil {
		status = err.Error()
	} else if err := signer.VerifyReport(r); err != nil {
		status = err.Error()
	}
	fmt.Fprintf(w, "\nIntegrity  %s (chain %.12s)\n", status, r.EventChainDigest)
}

func offset(t time.Time) string {
	return t.Sub(replay.Epoch).Truncate(time.Second).String()
}
