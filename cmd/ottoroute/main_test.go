package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const scenario = "2\n50 0 5\n50 100 5\n0\n"

var costLine = regexp.MustCompile(`^\d+\.\d{3}$`)

func runCLI(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errb)
	return code, out.String(), errb.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestRunStdin(t *testing.T) {
	code, out, _ := runCLI(t, scenario)
	require.Equal(t, exitOK, code)
	require.Equal(t, "90.711\n", out)

	code, out, _ = runCLI(t, scenario, "-algo", "ip")
	require.Equal(t, exitOK, code)
	require.Equal(t, "90.711\n", out)
}

func TestRunBothAndRoute(t *testing.T) {
	code, out, errOut := runCLI(t, scenario+"0\n", "-algo", "both", "-route")
	require.Equal(t, exitOK, code, errOut)
	require.Equal(t, []string{
		"dp=90.711 ip=90.711",
		"  dp route: 0 3",
		"  ip route: 0 3",
		"dp=80.711 ip=80.711",
		"  dp route: 0 1",
		"  ip route: 0 1",
	}, lines(out))

	code, out, _ = runCLI(t, scenario, "-route")
	require.Equal(t, exitOK, code)
	require.Equal(t, "90.711\n  route: 0 3\n", out)
}

func TestRunSamples(t *testing.T) {
	dir := filepath.Join("..", "..", "samples")
	for _, key := range []string{"s", "M"} {
		code, out, errOut := runCLI(t, "", "-sample", key, "-samples-dir", dir, "-algo", "both", "-workers", "4")
		require.Equal(t, exitOK, code, errOut)
		for _, l := range lines(out) {
			require.NotContains(t, l, "MISMATCH")
			require.True(t, strings.HasPrefix(l, "dp="), l)
		}
	}
	code, out, _ := runCLI(t, "", "-sample", "s", "-samples-dir", dir)
	require.Equal(t, exitOK, code)
	require.Len(t, lines(out), 3)
	for _, l := range lines(out) {
		require.Regexp(t, costLine, l)
	}
}

func TestRunInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))
	code, out, _ := runCLI(t, "", "-input", path)
	require.Equal(t, exitOK, code)
	require.Equal(t, "90.711\n", out)

	code, _, errOut := runCLI(t, "", "-input", filepath.Join(t.TempDir(), "missing.txt"))
	require.Equal(t, exitFatal, code)
	require.NotEmpty(t, errOut)
}

func TestRunRejects(t *testing.T) {
	code, out, errOut := runCLI(t, "1\n1 2\n")
	require.Equal(t, exitFatal, code)
	require.Empty(t, out)
	require.Contains(t, errOut, "line 2")

	code, _, _ = runCLI(t, scenario, "-algo", "greedy")
	require.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, scenario, "-input", "a.txt", "-sample", "s")
	require.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, scenario, "stray")
	require.Equal(t, exitUsage, code)
}

func TestRunInvalidInstanceContinues(t *testing.T) {
	code, out, _ := runCLI(t, "1\n1 1 -4\n1\n50 0 5\n50 100 5\n0\n")
	require.Equal(t, exitOK, code)
	got := lines(out)
	require.Len(t, got, 2)
	require.True(t, strings.HasPrefix(got[0], "invalid: "), got[0])
	require.Equal(t, "90.711", got[1])
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runCLI(t, "", "-version")
	require.Equal(t, exitOK, code)
	require.Equal(t, "ottoroute dev\n", out)
}

func TestRunPrompt(t *testing.T) {
	prev := isTerminal
	isTerminal = func(io.Reader) bool { return true }
	t.Cleanup(func() { isTerminal = prev })

	dir := filepath.Join("..", "..", "samples")
	code, out, _ := runCLI(t, "S\n", "-samples-dir", dir)
	require.Equal(t, exitOK, code)
	got := lines(out)
	require.Equal(t, "Select the test case. Press:", got[0])
	require.Len(t, got, 4+3)
	require.Regexp(t, costLine, got[4])

	code, out, _ = runCLI(t, "q\n", "-samples-dir", dir)
	require.Equal(t, exitOK, code)
	require.True(t, strings.HasSuffix(out, "Invalid input.\n"))
}

func TestRunHelp(t *testing.T) {
	code, out, errOut := runCLI(t, "", "-help")
	require.Equal(t, exitOK, code)
	require.Empty(t, out)
	require.Contains(t, errOut, "left open at end of input is still solved")
	require.Contains(t, errOut, "-algo")
}
