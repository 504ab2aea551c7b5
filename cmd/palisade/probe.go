package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/palisade/palisade/pkg/profile"
	"github.com/palisade/palisade/pkg/upstream"
)

type probeOptions struct {
	profilePath string
	target      string
	timeout     time.Duration
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Dial the profile's upstream targets and report reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.profilePath, "profile", "", "profile file, .json or .toml")
	cmd.Flags().StringVar(&opts.target, "target", "", "probe only the upstream with this name")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-target dial timeout")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func runProbe(ctx context.Context, opts *probeOptions) error {
	p, err := loadProfile(opts.profilePath)
	if err != nil {
		return err
	}
	if len(p.Upstreams) == 0 {
		return fmt.Errorf("profile has no upstream targets")
	}

	var failed int
	for _, target := range p.Upstreams {
		if opts.target != "" && target.Name != opts.target {
			continue
		}
		name := target.Name
		if name == "" {
			name = target.URL
		}
		elapsed, err := probeTarget(ctx, target, opts.timeout)
		if err != nil {
			failed++
			fmt.Printf("%-24s %-5s FAIL %v\n", name, target.Transport, err)
			continue
		}
		fmt.Printf("%-24s %-5s OK %s\n", name, target.Transport, elapsed.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d target(s) unreachable", failed)
	}
	return nil
}

func probeTarget(ctx context.Context, target profile.Upstream, timeout time.Duration) (time.Duration, error) {
	session, err := upstream.New(target, upstream.Options{DialTimeout: timeout})
	if err != nil {
		return 0, err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := session.Open(ctx)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}
