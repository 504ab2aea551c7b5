package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/palisade/palisade/pkg/profile"
	cborprofile "github.com/palisade/palisade/pkg/profile/cbor"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create and convert connection profiles",
	}
	cmd.AddCommand(newProfileCreateCmd(), newProfileEncodeCmd(), newProfileDecodeCmd())
	return cmd
}

type profileCreateOptions struct {
	name      string
	seed      string
	fallback  string
	upstreams []string
	outPath   string
}

func newProfileCreateCmd() *cobra.Command {
	opts := &profileCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a profile with stock settings and a fresh mask seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileCreate(opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "profile name")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "base64 mask seed (generated when empty)")
	cmd.Flags().StringVar(&opts.fallback, "fallback", "", "detector fallback protocol")
	cmd.Flags().StringArrayVar(&opts.upstreams, "upstream", nil,
		"upstream target, e.g. quic://host:443, wss://host/tunnel, tcp://host:9000?socks5=proxy:1080 (repeatable)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "output file (defaults to stdout)")
	return cmd
}

func runProfileCreate(opts *profileCreateOptions) error {
	p := profile.New(opts.name)
	p.Engine = profile.DefaultEngineSettings()
	p.Wire = profile.DefaultWireSettings()

	if opts.fallback != "" {
		p.Wire.Fallback = opts.fallback
	}
	if opts.seed != "" {
		p.Wire.MaskSeed = opts.seed
	} else {
		var seed [32]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return fmt.Errorf("generate seed: %w", err)
		}
		p.Wire.MaskSeed = base64.StdEncoding.EncodeToString(seed[:])
	}

	for _, raw := range opts.upstreams {
		up, err := parseUpstreamArg(raw)
		if err != nil {
			return err
		}
		p.Upstreams = append(p.Upstreams, up)
	}

	if err := p.Validate(); err != nil {
		return err
	}
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(opts.outPath, out)
}

func parseUpstreamArg(raw string) (profile.Upstream, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return profile.Upstream{}, fmt.Errorf("upstream %q: %w", raw, err)
	}
	up := profile.Upstream{Name: u.Fragment}
	switch u.Scheme {
	case "quic":
		up.URL = u.Host
		up.Transport = profile.TransportQUIC
	case "ws", "wss":
		u.Fragment = ""
		up.URL = u.String()
		up.Transport = profile.TransportWebSocket
	case "tcp":
		up.URL = u.Host
		up.Transport = profile.TransportTCP
		up.Socks5Proxy = u.Query().Get("socks5")
	default:
		return profile.Upstream{}, fmt.Errorf("upstream %q: unknown scheme %q", raw, u.Scheme)
	}
	if up.URL == "" {
		return profile.Upstream{}, fmt.Errorf("upstream %q: missing host", raw)
	}
	return up, nil
}

type profileConvertOptions struct {
	inPath     string
	outPath    string
	base64Mode bool
}

func newProfileEncodeCmd() *cobra.Command {
	opts := &profileConvertOptions{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a JSON profile into compact CBOR",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(opts.inPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			out, err := cborprofile.EncodeJSONProfile(input)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if opts.base64Mode {
				out = []byte(base64.StdEncoding.EncodeToString(out))
			}
			return writeOutput(opts.outPath, out)
		},
	}
	addConvertFlags(cmd, opts)
	return cmd
}

func newProfileDecodeCmd() *cobra.Command {
	opts := &profileConvertOptions{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode CBOR profile bytes back into JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(opts.inPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if opts.base64Mode {
				input, err = decodeBase64(input)
				if err != nil {
					return fmt.Errorf("decode base64: %w", err)
				}
			}
			out, err := cborprofile.DecodeCBORToJSON(input)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			return writeOutput(opts.outPath, out)
		},
	}
	addConvertFlags(cmd, opts)
	return cmd
}

func addConvertFlags(cmd *cobra.Command, opts *profileConvertOptions) {
	cmd.Flags().StringVar(&opts.inPath, "in", "", "input file (defaults to stdin)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "output file (defaults to stdout)")
	cmd.Flags().BoolVar(&opts.base64Mode, "base64", false, "read/write base64-wrapped CBOR")
}
