// cmd/tools/verify-token/main.go
//
// Manual check of a captured token against the live siteverify endpoint.
// Useful when tuning the score threshold for a deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"

	"recaptcha-gate/internal/common/config"
	"recaptcha-gate/internal/common/logger"
	"recaptcha-gate/internal/verify"
)

type options struct {
	token      string
	action     string
	remoteIP   string
	host       string
	threshold  float64
	configPath string
	jsonOut    bool
	silent     bool
}

func main() {
	opts := parseFlags()
	if !opts.silent {
		printBanner()
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.token, "token", "", "Token to verify (required)")
	flag.StringVar(&opts.action, "action", "", "Expected action name")
	flag.StringVar(&opts.remoteIP, "ip", "", "Client IP forwarded as advisory signal")
	flag.StringVar(&opts.host, "host", "", "Serving host for the hostname check")
	flag.Float64Var(&opts.threshold, "threshold", -1, "Score threshold override (0.0-1.0)")
	flag.StringVar(&opts.configPath, "config", "", "Config file path (default: ./configs/config.yaml)")
	flag.BoolVar(&opts.jsonOut, "json", false, "Print the raw result as JSON")
	flag.BoolVar(&opts.silent, "silent", false, "Suppress the banner")
	flag.Parse()
	return opts
}

func printBanner() {
	myFigure := figure.NewColorFigure("VERIFY", "doom", "cyan", true)
	myFigure.Print()

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Println("════════════════════════════════════════════════")
	_, _ = cyan.Println("    reCAPTCHA token inspector")
	_, _ = cyan.Println("════════════════════════════════════════════════")
}

func run(opts options) error {
	if opts.token == "" {
		flag.Usage()
		return fmt.Errorf("-token is required")
	}

	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFromFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	verifier, err := verify.NewVerifier(cfg.Recaptcha, logger.NewNoOpLogger())
	if err != nil {
		return err
	}

	req := verify.Request{
		Token:          opts.token,
		ExpectedAction: opts.action,
		RemoteAddr:     opts.remoteIP,
		ServingHost:    opts.host,
	}
	if opts.threshold >= 0 {
		req.ScoreThreshold = &opts.threshold
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result := verifier.Verify(ctx, req)

	if opts.jsonOut {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	printResult(result)
	if !result.Decision {
		os.Exit(1)
	}
	return nil
}

func printResult(result verify.Result) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	if result.Decision {
		_, _ = green.Println("[+] PASS")
	} else {
		_, _ = red.Printf("[-] REJECT (%s)\n", result.ErrorCode)
		if result.Reason != "" {
			_, _ = red.Printf("    reason: %s\n", result.Reason)
		}
	}

	if result.Score != nil {
		fmt.Printf("    score:    %.2f\n", *result.Score)
	}
	if result.Action != "" {
		fmt.Printf("    action:   %s\n", result.Action)
	}
	if result.Hostname != "" {
		fmt.Printf("    hostname: %s\n", result.Hostname)
	}
	if len(result.ErrorCodes) > 0 {
		_, _ = gray.Printf("    error-codes: %v\n", result.ErrorCodes)
	}
}
