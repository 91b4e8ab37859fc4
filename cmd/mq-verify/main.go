package main

// main.go implements the multiqueue log verifier CLI: it parses
// command-line flags, reads an operation log produced by a workload driver
// (stdin or file), replays it through the consistency checker and prints
// the result either as pretty text or JSON.
//
// The log format is one header line with the thread count followed by one
// line per operation:
//
//	i <thread> <tick> <key> <thread> <value>
//	d <thread> <tick> <key> <pushing thread> <value>
//
// Exit status is 0 for a consistent log and 1 otherwise, so the tool can
// gate CI runs of the stress workloads.
//
// Build-time flag: `-ldflags "-X main.version=vX.Y.Z"` sets the version
// that -version prints.
// ---------------------------------------------------------------
// © 2025 multiqueue authors. MIT License.

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Voskan/multiqueue/internal/oplog"
)

var version = "dev"

type options struct {
	path    string
	json    bool
	quiet   bool
	version bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.path, "file", "", "log file to verify (default stdin)")
	flag.BoolVar(&opts.json, "json", false, "emit the result as JSON")
	flag.BoolVar(&opts.quiet, "quiet", false, "suppress the summary; exit status only")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.version {
		fmt.Println(version)
		return
	}

	log, err := zap.NewProduction()
	if err != nil {
		fatal(err)
	}
	defer log.Sync()

	var in io.Reader = os.Stdin
	if opts.path != "" {
		f, err := os.Open(opts.path)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		in = f
	}

	stats, err := oplog.Verify(in)
	if err != nil {
		log.Error("log inconsistent", zap.Error(err))
		os.Exit(1)
	}

	if opts.quiet {
		return
	}
	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fatal(err)
		}
		return
	}
	fmt.Printf("Threads:    %d\n", stats.Threads)
	fmt.Printf("Insertions: %d\n", stats.Insertions)
	fmt.Printf("Deletions:  %d\n", stats.Deletions)
	fmt.Printf("Remaining:  %d\n", stats.Remaining)
	fmt.Println("Log is consistent")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "mq-verify:", err)
	os.Exit(1)
}
