package main

// workload_gen.go is a tiny helper utility to generate deterministic
// operation logs for exercising mq-verify (and for seeding external replay
// tooling).  It simulates a multi-threaded push/pop run over uniformly or
// Zipf-distributed keys and emits the log in the verifier's text format.
//
// Usage:
//   go run ./tools/workload_gen -threads 8 -n 10000 -dist=zipf -seed=42 -out log.txt
//
// Flags:
//   -threads  number of simulated threads (default 8)
//   -n        insertions per thread (default 10000)
//   -dist     key distribution: "uniform" or "zipf" (default uniform)
//   -zipfs    Zipf s parameter (>1)  (default 1.2)
//   -zipfv    Zipf v parameter (>0)  (default 1.0)
//   -seed     RNG seed (default current time)
//   -out      output file (default stdout)
//   -corrupt  inject a double deletion so the verifier must reject the log
//
// The program is *embarrassingly simple* but placed under version control
// so that any contributor can regenerate the exact logs used when hunting
// verifier regressions.
//
// © 2025 multiqueue authors. MIT License.

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		threads = flag.Int("threads", 8, "number of simulated threads")
		n       = flag.Int("n", 10_000, "insertions per thread")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>0)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
		corrupt = flag.Bool("corrupt", false, "inject a double deletion")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = func() uint64 { return rnd.Uint64() >> 1 } // keep clear of the sentinel
	case "zipf":
		if *zipfS <= 1.0 || *zipfV <= 0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >0")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, 1<<32)
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	type insertion struct {
		thread int
		value  uint64
		key    uint64
	}

	tick := uint64(0)
	inserts := make([]insertion, 0, (*threads)*(*n))
	fmt.Fprintln(w, *threads)
	for t := 0; t < *threads; t++ {
		for v := 0; v < *n; v++ {
			key := gen()
			tick++
			fmt.Fprintf(w, "i %d %d %d %d %d\n", t, tick, key, t, v)
			inserts = append(inserts, insertion{thread: t, value: uint64(v), key: key})
		}
	}

	// Deletions in random order, attributed round-robin to threads.
	rnd.Shuffle(len(inserts), func(i, j int) { inserts[i], inserts[j] = inserts[j], inserts[i] })
	for i, ins := range inserts {
		tick++
		fmt.Fprintf(w, "d %d %d %d %d %d\n", i%*threads, tick, ins.key, ins.thread, ins.value)
	}
	if *corrupt && len(inserts) > 0 {
		ins := inserts[0]
		tick++
		fmt.Fprintf(w, "d %d %d %d %d %d\n", 0, tick, ins.key, ins.thread, ins.value)
	}
}
