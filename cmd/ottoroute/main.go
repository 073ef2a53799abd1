// Command ottoroute prints the optimal route cost of every instance in an
// input file, one line per instance with three decimals.
//
//	ottoroute -algo dp < sample_input_small.txt
//	ottoroute -sample m -algo both -route
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"ottoroute/internal/buildinfo"
	"ottoroute/internal/config"
	"ottoroute/internal/loader"
	"ottoroute/internal/model"
	"ottoroute/internal/opt"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("ottoroute: ")
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// isTerminal reports whether r is an interactive terminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

type options struct {
	algo       string
	input      string
	sample     string
	samplesDir string
	configPath string
	workers    int
	timeout    time.Duration
	route      bool
	timing     bool
	version    bool
}

const inputHelp = `Input is a sequence of instances. A line holding one number opens an
instance and closes the previous one; each "x y penalty" line adds a waypoint.
An instance left open at end of input is still solved when it has waypoints.
`

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("ottoroute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.algo, "algo", "", "solver: dp, ip or both (default from config, dp)")
	fs.StringVar(&o.input, "input", "", "input file (default stdin)")
	fs.StringVar(&o.sample, "sample", "", "canned input: s, m or l")
	fs.StringVar(&o.samplesDir, "samples-dir", "", "directory holding the canned inputs")
	fs.StringVar(&o.configPath, "config", "", "optional YAML config file")
	fs.IntVar(&o.workers, "workers", 0, "instances solved in parallel (default from config)")
	fs.DurationVar(&o.timeout, "timeout", 0, "wall-clock limit per ip solve (default from config)")
	fs.BoolVar(&o.route, "route", false, "print the chosen stop indices after each cost")
	fs.BoolVar(&o.timing, "timing", false, "report total solve time on stderr")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ottoroute [flags]\n\n%s\nFlags:\n", inputHelp)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.input != "" && o.sample != "" {
		return o, errors.New("-input and -sample are mutually exclusive")
	}
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if o.version {
		fmt.Fprintln(stdout, buildinfo.String())
		return exitOK
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}
	if o.algo == "" {
		o.algo = cfg.Algorithm
	}
	if o.samplesDir == "" {
		o.samplesDir = cfg.SamplesDir
	}
	if o.workers == 0 {
		o.workers = cfg.Workers
	}
	if o.timeout == 0 {
		o.timeout = cfg.SolveTimeout
	}

	algos, err := parseAlgos(o.algo)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	sample := o.sample
	if o.input == "" && sample == "" && isTerminal(stdin) {
		sample, err = promptSample(stdin, stdout)
		if err != nil {
			// the interactive selector exits quietly on anything but s, m or l
			fmt.Fprintln(stdout, "Invalid input.")
			return exitOK
		}
	}

	instances, err := readInstances(o, sample, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	start := time.Now()
	results := make([][]opt.Outcome, len(algos))
	for k, algo := range algos {
		solver, err := opt.NewSolver(algo, opt.Options{Timeout: o.timeout})
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFatal
		}
		results[k], err = opt.SolveBatch(context.Background(), opt.ConfigFromVehicle(cfg.Vehicle), instances, solver, opt.BatchOptions{Workers: o.workers})
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFatal
		}
	}

	w := bufio.NewWriter(stdout)
	defer w.Flush()
	mismatches := 0
	for i := range instances {
		if len(algos) == 1 {
			writeOutcome(w, results[0][i], o.route)
			continue
		}
		dp, ip := results[0][i], results[1][i]
		fmt.Fprintf(w, "dp=%s ip=%s", outcomeString(dp), outcomeString(ip))
		if disagree(dp, ip) {
			mismatches++
			fmt.Fprint(w, " MISMATCH")
		}
		fmt.Fprintln(w)
		if o.route {
			writeRoute(w, "dp", dp)
			writeRoute(w, "ip", ip)
		}
	}
	if o.timing {
		fmt.Fprintf(stderr, "solved %d instances in %s\n", len(instances), time.Since(start).Round(time.Microsecond))
	}
	if mismatches > 0 {
		w.Flush()
		fmt.Fprintf(stderr, "%d of %d instances disagree by more than %g\n", mismatches, len(instances), opt.Tolerance)
		return exitFatal
	}
	return exitOK
}

func parseAlgos(s string) ([]opt.Algorithm, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return []opt.Algorithm{opt.AlgorithmDP, opt.AlgorithmIP}, nil
	}
	a, err := opt.ParseAlgorithm(s)
	if err != nil {
		return nil, err
	}
	return []opt.Algorithm{a}, nil
}

func promptSample(stdin io.Reader, stdout io.Writer) (string, error) {
	fmt.Fprintln(stdout, "Select the test case. Press:")
	fmt.Fprintln(stdout, "s : for sample_input_small")
	fmt.Fprintln(stdout, "m : for sample_input_medium")
	fmt.Fprintln(stdout, "l : for sample_input_large")
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	key := strings.TrimSpace(line)
	if _, err := loader.SampleFile("", key); err != nil {
		return "", err
	}
	return key, nil
}

func readInstances(o options, sample string, stdin io.Reader) ([][]model.Waypoint, error) {
	switch {
	case sample != "":
		path, err := loader.SampleFile(o.samplesDir, sample)
		if err != nil {
			return nil, err
		}
		return loader.ParseFile(path)
	case o.input != "" && o.input != "-":
		return loader.ParseFile(o.input)
	default:
		return loader.Parse(stdin)
	}
}

func outcomeString(o opt.Outcome) string {
	if o.Err != nil {
		return "invalid"
	}
	return o.Result.String()
}

func writeOutcome(w io.Writer, o opt.Outcome, withRoute bool) {
	if o.Err != nil {
		fmt.Fprintf(w, "invalid: %v\n", o.Err)
		return
	}
	fmt.Fprintln(w, o.Result.String())
	if withRoute {
		writeRoute(w, "", o)
	}
}

func writeRoute(w io.Writer, label string, o opt.Outcome) {
	if o.Err != nil || !o.Result.Solved() {
		return
	}
	idx := make([]string, len(o.Result.Route))
	for k, v := range o.Result.Route {
		idx[k] = fmt.Sprint(v)
	}
	if label != "" {
		label += " "
	}
	fmt.Fprintf(w, "  %sroute: %s\n", label, strings.Join(idx, " "))
}

// disagree reports whether two outcomes of the same instance differ: one solved
// and the other not, or both solved with costs further apart than opt.Tolerance.
func disagree(a, b opt.Outcome) bool {
	aok := a.Err == nil && a.Result.Solved()
	bok := b.Err == nil && b.Result.Solved()
	if aok != bok {
		return true
	}
	return aok && math.Abs(a.Result.Cost-b.Result.Cost) > opt.Tolerance+1e-9
}
