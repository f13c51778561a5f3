package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "skip the long balance-conservation runs")
	race       = flag.Bool("race", true, "run with the race detector; the execution tests are concurrent")
	timeout    = flag.Duration("timeout", 10*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	pkg        = flag.String("pkg", "./...", "package pattern to test")
)

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}
	args = append(args, *pkg)

	// Tests create their own databases; keep a stray .env from pointing them
	// at a real one.
	dataDir, err := os.MkdirTemp("", "trade-desk-tests-*")
	if err != nil {
		fmt.Printf("Error creating test data directory: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dataDir)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"TEST_ENV=true",
		"LOG_LEVEL=ERROR",
		"DB_PATH="+dataDir+"/test.db",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.RemoveAll(dataDir)
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.RemoveAll(dataDir)
		os.Exit(1)
	}
}
