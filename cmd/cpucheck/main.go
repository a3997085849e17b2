// Command cpucheck reports whether this machine can run the bundled ffmpeg
// binaries.  It exits 0 when the CPU is supported and 1 otherwise.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

func main() {
	var asJSON bool
	var quiet bool
	var verbose bool
	var abi string

	flag.BoolVar(&asJSON, "json", false, "Print the full report as JSON.")
	flag.BoolVar(&quiet, "quiet", false, "Print nothing; only set the exit status.")
	flag.BoolVar(&verbose, "verbose", false, "Log detection details to stderr.")
	flag.StringVar(&abi, "abi", "", "Evaluate the given ABI instead of the host ABI (e.g. armeabi, arm64-v8a, x86).")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	cpufeatures.SetLogger(log)

	features := cpufeatures.Detect()
	report := cpucheck.NewReport(features, abi)
	log.Debug(features.Summary())

	if !quiet {
		if err := printReport(os.Stdout, report, asJSON, term.IsTerminal(int(os.Stdout.Fd()))); err != nil {
			log.Errorf("Failed to print report: %v", err)
		}
	}

	if !report.Supported {
		os.Exit(1)
	}
}

func printReport(w io.Writer, report *cpucheck.Report, asJSON, color bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	verdict := "unsupported"
	start := colorRed
	if report.Supported {
		verdict = "supported"
		start = colorGreen
	}
	if !color {
		start = ""
	}
	end := colorReset
	if !color {
		end = ""
	}

	_, err := fmt.Fprintf(w, "%s%s%s\n  family:  %s\n  abi:     %s\n  assets:  %s\n  features: %v\n",
		start, verdict, end, report.Family, report.ABI, report.AssetsDir, report.Features)
	if err != nil {
		return err
	}
	if report.BrandName != "" {
		_, err = fmt.Fprintf(w, "  cpu:     %s\n", report.BrandName)
	}
	return err
}
