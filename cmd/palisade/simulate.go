package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/palisade/palisade/pkg/codec"
	"github.com/palisade/palisade/pkg/commons/config"
	"github.com/palisade/palisade/pkg/conntrack"
	"github.com/palisade/palisade/pkg/profile"
	"github.com/palisade/palisade/pkg/replay"
	"github.com/palisade/palisade/pkg/wire"
)

type simulateOptions struct {
	profilePath string
	conns       int
	rounds      int
	failures    int
	failKind    string
}

func newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a tracking engine through classification, traffic, and failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts)
		},
	}
	cmd.Flags().StringVar(&opts.profilePath, "profile", "", "profile file, .json or .toml (defaults to stock settings)")
	cmd.Flags().IntVar(&opts.conns, "conns", 4, "connections to track")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 3, "encrypt/decrypt round trips per connection")
	cmd.Flags().IntVar(&opts.failures, "failures", 3, "errors to inject into the first connection")
	cmd.Flags().StringVar(&opts.failKind, "fail-kind", "network", "error kind to inject")
	return cmd
}

func runSimulate(opts *simulateOptions) error {
	p, err := loadProfile(opts.profilePath)
	if err != nil {
		return err
	}
	failKind, err := wire.ParseErrorKind(opts.failKind)
	if err != nil {
		return err
	}

	log := slog.Default()
	cfg, err := engineConfig(p, log)
	if err != nil {
		return err
	}
	cfg.Callbacks = conntrack.Callbacks{
		OnError: func(conn conntrack.ConnInfo, kind wire.ErrorKind) {
			log.Warn("event: error", "conn", uint64(conn.ID), "kind", kind, "state", conn.State)
		},
		OnReconnect: func(conn conntrack.ConnInfo) {
			log.Info("event: reconnect due", "conn", uint64(conn.ID), "attempt", conn.ReconnectAttempts)
		},
		OnHealth: func(conn conntrack.ConnInfo, healthy bool) {
			log.Debug("event: health", "conn", uint64(conn.ID), "healthy", healthy)
		},
	}

	eng, err := conntrack.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	ids := make([]conntrack.ConnID, 0, opts.conns)
	for i := 0; i < opts.conns; i++ {
		spec := conntrack.TrackSpec{
			Remote:   netip.AddrPortFrom(netip.AddrFrom4([4]byte{192, 0, 2, byte(i%250 + 1)}), uint16(40000+i)),
			Local:    netip.MustParseAddrPort("127.0.0.1:9000"),
			Eligible: i%2 == 0,
		}
		id, err := eng.Track(spec)
		if err != nil {
			return fmt.Errorf("track: %w", err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		frame := firstFrame(i)
		tag, err := eng.Classify(id, frame)
		if err != nil {
			return fmt.Errorf("classify conn %d: %w", id, err)
		}
		if tag == wire.TagObfSocks {
			if err := eng.Handshake(id, frame); err != nil {
				return fmt.Errorf("handshake conn %d: %w", id, err)
			}
		}
		for r := 0; r < opts.rounds; r++ {
			payload := fmt.Appendf(nil, "payload %d/%d", i, r)
			sealed, err := eng.Encrypt(id, payload)
			if err != nil {
				return fmt.Errorf("encrypt conn %d: %w", id, err)
			}
			if _, err := eng.Decrypt(id, sealed); err != nil {
				return fmt.Errorf("decrypt conn %d: %w", id, err)
			}
		}
	}

	if opts.failures > 0 && len(ids) > 0 {
		target := ids[0]
		log.Info("injecting failures", "conn", uint64(target), "kind", failKind, "count", opts.failures)
		for i := 0; i < opts.failures; i++ {
			if err := eng.HandleError(target, failKind); err != nil {
				return fmt.Errorf("inject error: %w", err)
			}
		}
		if info, ok := eng.Lookup(target); ok && info.State == conntrack.StateConnecting {
			delay := p.Engine.ReconnectDelay.Duration
			if delay <= 0 {
				delay = time.Second
			}
			log.Info("waiting out reconnect backoff", "delay", delay)
			time.Sleep(delay + 500*time.Millisecond)
		}
	}

	eng.RunHealthSweep()

	out, err := json.MarshalIndent(eng.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func loadProfile(path string) (profile.Profile, error) {
	if path == "" {
		p := profile.New("simulated")
		p.Engine = profile.DefaultEngineSettings()
		p.Wire = profile.DefaultWireSettings()
		return p, nil
	}
	var p profile.Profile
	var err error
	switch filepath.Ext(path) {
	case ".toml":
		err = config.LoadTOMLFile(path, &p)
	default:
		err = config.LoadJSONFile(path, &p)
	}
	if err != nil {
		return profile.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// engineConfig binds a profile to a runnable engine configuration: codecs for
// both protocols, the detector with the configured fallback, and the tracking
// knobs.
func engineConfig(p profile.Profile, log *slog.Logger) (conntrack.Config, error) {
	seed, err := p.Wire.MaskSeedBytes()
	if err != nil {
		return conntrack.Config{}, err
	}
	codecs := codec.NewRegistry()
	if err := codecs.Register(codec.NewFramedRPC()); err != nil {
		return conntrack.Config{}, err
	}
	cache := replay.NewCache(p.Wire.ReplayCacheSize, p.Wire.StampValidity.Duration)
	if err := codecs.Register(codec.NewObfSocks(seed, cache)); err != nil {
		return conntrack.Config{}, err
	}

	det := wire.NewDetector()
	det.SetFallback(p.Wire.FallbackTag())

	return conntrack.Config{
		Capacity:             p.Engine.Capacity,
		HealthCheckInterval:  p.Engine.HealthCheckInterval.Duration,
		ProtocolTimeout:      p.Engine.ProtocolTimeout.Duration,
		DegradedThreshold:    p.Engine.DegradedThreshold,
		DisableAutoReconnect: p.Engine.DisableAutoReconnect,
		MaxReconnectAttempts: p.Engine.MaxReconnectAttempts,
		ReconnectDelay:       p.Engine.ReconnectDelay.Duration,
		ReconnectDelayMax:    p.Engine.ReconnectDelayMax.Duration,
		EventQueueSize:       p.Engine.EventQueueSize,
		AdmitPerSecond:       p.Engine.AdmitPerSecond,
		AdmitBurst:           p.Engine.AdmitBurst,
		Detector:             det,
		Codecs:               codecs,
		Logger:               log,
	}, nil
}

// firstFrame fabricates a plausible opening frame, alternating between the
// two protocols.
func firstFrame(i int) []byte {
	if i%2 == 0 {
		return rpcFrame(1, fmt.Appendf(nil, "call %d", i))
	}
	return socksHello(uint16(9000 + i))
}

func rpcFrame(seq uint32, payload []byte) []byte {
	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], wire.MsgIDFloor+seq)
	copy(frame[8:], payload)
	return frame
}

func socksHello(port uint16) []byte {
	hello := []byte{4, 198, 51, 100, 7}
	var portBytes [2]byte
	binary.BigEndian.PutUint16(portBytes[:], port)
	hello = append(hello, portBytes[:]...)
	stamp := replay.NowStamp()
	return append(hello, stamp[:]...)
}
