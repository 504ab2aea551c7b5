package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palisade/palisade/pkg/wire"
)

type detectOptions struct {
	hexInput string
	inPath   string
	fallback string
}

func newDetectCmd() *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Classify a captured first frame by protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(opts)
		},
	}
	cmd.Flags().StringVar(&opts.hexInput, "hex", "", "frame bytes as hex")
	cmd.Flags().StringVar(&opts.inPath, "in", "", "input file (defaults to stdin)")
	cmd.Flags().StringVar(&opts.fallback, "fallback", "", "protocol to assume when no rule matches")
	return cmd
}

func runDetect(opts *detectOptions) error {
	var buf []byte
	if opts.hexInput != "" {
		raw, err := hex.DecodeString(stripWhitespace(opts.hexInput))
		if err != nil {
			return fmt.Errorf("decode hex: %w", err)
		}
		buf = raw
	} else {
		raw, err := readInput(opts.inPath)
		if err != nil {
			return err
		}
		buf = raw
	}

	det := wire.NewDetector()
	if opts.fallback != "" {
		tag, err := wire.ParseTag(opts.fallback)
		if err != nil {
			return err
		}
		det.SetFallback(tag)
	}

	tag := det.Detect(buf)
	fmt.Printf("protocol=%s bytes=%d\n", tag, len(buf))

	switch tag {
	case wire.TagFramedRPC:
		if !wire.MatchFramedRPC(buf) {
			fmt.Println("matched=fallback")
			break
		}
		frameLen := binary.LittleEndian.Uint32(buf[0:4])
		msgID := binary.LittleEndian.Uint32(buf[4:8])
		fmt.Printf("frame_len=%d msg_id=0x%08x\n", frameLen, msgID)
	case wire.TagObfSocks:
		if !wire.MatchObfSocks(buf) {
			fmt.Println("matched=fallback")
			break
		}
		addrLen := int(buf[0])
		port := binary.BigEndian.Uint16(buf[1+addrLen : 1+addrLen+2])
		fmt.Printf("addr_len=%d addr=%s port=%d\n", addrLen, hex.EncodeToString(buf[1:1+addrLen]), port)
	}
	return nil
}
