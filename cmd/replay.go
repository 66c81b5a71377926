// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/dispatcher"
	"github.com/Thermoquad/emcore/pkg/packet"
	"github.com/Thermoquad/emcore/pkg/pipeline"
	"github.com/Thermoquad/emcore/pkg/ring"
)

// syncPattern is the fixed two-byte frame marker the framing parser hunts
// for; it matches the pattern exercised throughout pkg/packet's tests.
var syncPattern = []byte{0x55, 0xAA}

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Decode emCore packets from a captured file, serial port, or WebSocket",
	Long: `replay feeds a byte source through the ring buffer, framing parser, and
opcode dispatcher exactly as a running node would, and prints each decoded
packet. With a file argument it replays a captured byte stream for offline
testing; without one it reads from --port/--url instead. It has no
notion of the heliostat/pump wire format; it only understands the generic
emCore frame (sync, opcode, length, payload, fletcher16 checksum).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func openReplaySource(args []string) (Connection, string, error) {
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, "", fmt.Errorf("open capture file: %w", err)
		}
		return f, fmt.Sprintf("file: %s", args[0]), nil
	}
	return OpenConnection()
}

func runReplay(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openReplaySource(args)
	if err != nil {
		return fmt.Errorf("emcored: %w", err)
	}
	defer conn.Close()

	cfg := config.Default()

	r := ring.New(cfg.ProtocolRingSize)
	p := packet.NewParser(syncPattern, cfg.ProtocolPacketSize, cfg.ProtocolLength16Bit)
	d := dispatcher.New(cfg.ProtocolMaxHandlers)
	pl := pipeline.New(r, p, d)

	decoded := 0
	d.SetUnknownHandler(func(pkt packet.Packet) {
		decoded++
		fmt.Printf("packet: opcode=0x%02X length=%d checksum=0x%04X\n", pkt.Opcode, pkt.Length, pkt.ChecksumRX)
	})

	fmt.Fprintf(os.Stderr, "replay: connected (%s)\n", connInfo)

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			r.PushBytes(buf[:n])
			pl.ProcessAvailablePackets(cfg.ProtocolMaxHandlers * 4)
		}
		if err != nil {
			if decoded == 0 {
				return fmt.Errorf("emcored: connection closed without decoding a packet: %w", err)
			}
			fmt.Fprintf(os.Stderr, "replay: connection closed after %d packets: %v\n", decoded, err)
			return nil
		}
	}
}
