//go:build ignore

// Package main compares Go benchmark output against a stored baseline and
// fails on regressions. Only ns/op is compared.
// Usage: go run scripts/bench-compare.go [-threshold 0.2] <current.txt> <baseline.txt>
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var (
	threshold = flag.Float64("threshold", 0.20, "Regression threshold as a fraction (0.2 = 20%)")
	failHard  = flag.Bool("fail", true, "Exit with code 1 on regression")
	showAll   = flag.Bool("all", false, "Print unchanged benchmarks too")
)

// benchLine matches standard go test -bench output. The -N CPU suffix is
// stripped so runs with different GOMAXPROCS still line up.
var benchLine = regexp.MustCompile(`^(Benchmark\S+?)(?:-\d+)?\s+\d+\s+([\d.]+)\s+ns/op`)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compares ns/op between two benchmark runs.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseBenchFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading current results: %v\n", err)
		os.Exit(2)
	}
	baseline, err := parseBenchFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading baseline: %v\n", err)
		os.Exit(2)
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	regressions := 0
	improvements := 0
	missing := 0

	for _, name := range names {
		cur := current[name]
		base, ok := baseline[name]
		if !ok {
			missing++
			fmt.Printf("  NEW        %-60s %12.1f ns/op\n", name, cur)
			continue
		}

		delta := (cur - base) / base
		switch {
		case delta > *threshold:
			regressions++
			fmt.Printf("  REGRESSED  %-60s %12.1f ns/op (was %.1f, %+.1f%%)\n", name, cur, base, delta*100)
		case delta < -*threshold:
			improvements++
			fmt.Printf("  IMPROVED   %-60s %12.1f ns/op (was %.1f, %+.1f%%)\n", name, cur, base, delta*100)
		default:
			if *showAll {
				fmt.Printf("  ok         %-60s %12.1f ns/op (%+.1f%%)\n", name, cur, delta*100)
			}
		}
	}

	fmt.Printf("\n%d benchmarks: %d regressed, %d improved, %d new\n",
		len(names), regressions, improvements, missing)

	if regressions > 0 && *failHard {
		os.Exit(1)
	}
}

// parseBenchFile reads go test -bench output into name -> ns/op. Repeated
// runs of the same benchmark keep the last measurement.
func parseBenchFile(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make(map[string]float64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := benchLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		results[m[1]] = ns
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no benchmark lines found in %s", path)
	}
	return results, nil
}
