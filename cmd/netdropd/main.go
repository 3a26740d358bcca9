// Command netdropd is the narrow CLI driver over NetDropOrchestrator's
// control surface (§6): serve, send-text, send-files, peers. Built as a
// cobra.Command tree (§2.1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ShivamForkedRepos/ndrop/internal/config"
	"github.com/ShivamForkedRepos/ndrop/internal/orchestrator"
	"github.com/ShivamForkedRepos/ndrop/internal/peer"
	"github.com/ShivamForkedRepos/ndrop/internal/xlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts config.Options
	var certPath, keyPath string

	root := &cobra.Command{
		Use:   "netdropd",
		Short: "LAN file and text drop over Dukto and NitroShare",
	}
	root.PersistentFlags().StringVar(&opts.Listen, "listen", "", "bind address (empty = all interfaces)")
	root.PersistentFlags().StringVar((*string)(&opts.Mode), "mode", "", `protocol mode: "", "dukto", or "nitroshare"`)
	root.PersistentFlags().StringVar(&opts.TargetDir, "target-dir", ".", "directory received files are written under")
	root.PersistentFlags().IntVar(&opts.TCPPort, "dukto-tcp-port", 0, "override Dukto TCP port")
	root.PersistentFlags().IntVar(&opts.UDPPort, "dukto-udp-port", 0, "override Dukto UDP port")
	root.PersistentFlags().IntVar(&opts.NitroShareUDPPort, "nitroshare-udp-port", 0, "override NitroShare UDP port")
	root.PersistentFlags().IntVar(&opts.NitroShareTCPPort, "nitroshare-tcp-port", 0, "override NitroShare TCP port")
	root.PersistentFlags().IntVar(&opts.PeerIdleTimeoutSeconds, "peer-idle-timeout", 0, "evict peers idle this many seconds (0 disables)")
	root.PersistentFlags().StringVar(&certPath, "tls-cert", "", "TLS certificate path (Dukto server only)")
	root.PersistentFlags().StringVar(&keyPath, "tls-key", "", "TLS key path (Dukto server only)")

	root.AddCommand(newServeCmd(&opts, &certPath, &keyPath))
	root.AddCommand(newSendTextCmd(&opts, &certPath, &keyPath))
	root.AddCommand(newSendFilesCmd(&opts, &certPath, &keyPath))
	root.AddCommand(newPeersCmd(&opts, &certPath, &keyPath))
	return root
}

func resolveOpts(opts *config.Options, certPath, keyPath *string) config.Options {
	out := *opts
	out.TLS = config.TLSMaterial{CertPath: *certPath, KeyPath: *keyPath}
	return out
}

func newServeCmd(opts *config.Options, certPath, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the orchestrator until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := xlog.For("netdropd")
			o, err := orchestrator.New(resolveOpts(opts, certPath, keyPath), &cliSink{log: log})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Msg("starting netdropd")
			err = o.Start(ctx)
			log.Info().Msg("netdropd stopped")
			return err
		},
	}
}

func newSendTextCmd(opts *config.Options, certPath, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "send-text <peer-address> <text>",
		Short: "send a text snippet to a discovered peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, target, err := startAndFindPeer(cmd.Context(), opts, certPath, keyPath, args[0])
			if err != nil {
				return err
			}
			defer o.Stop()
			return o.SendText(cmd.Context(), target, args[1])
		},
	}
}

func newSendFilesCmd(opts *config.Options, certPath, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "send-files <peer-address> <path...>",
		Short: "send one or more files/directories to a discovered peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, target, err := startAndFindPeer(cmd.Context(), opts, certPath, keyPath, args[0])
			if err != nil {
				return err
			}
			defer o.Stop()
			return o.SendFiles(cmd.Context(), target, args[1:])
		},
	}
}

func newPeersCmd(opts *config.Options, certPath, keyPath *string) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "print a one-shot snapshot of discovered peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := xlog.For("netdropd")
			o, err := orchestrator.New(resolveOpts(opts, certPath, keyPath), &cliSink{log: log})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), window)
			defer cancel()
			go o.Start(ctx)
			<-ctx.Done()
			o.Stop()
			for _, p := range o.SnapshotPeers() {
				fmt.Printf("%s\t%s\t%s:%d\n", p.Protocol, p.Signature, p.Address, p.Port)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 3*time.Second, "how long to listen for discovery before printing")
	return cmd
}

// startAndFindPeer starts the orchestrator, waits briefly for the target
// address to announce itself over discovery, and returns the matching
// peer record. Send subcommands are one-shot: they do not loop waiting
// indefinitely for a peer that never appears.
func startAndFindPeer(ctx context.Context, opts *config.Options, certPath, keyPath *string, address string) (*orchestrator.Orchestrator, peer.Peer, error) {
	log := xlog.For("netdropd")
	o, err := orchestrator.New(resolveOpts(opts, certPath, keyPath), &cliSink{log: log})
	if err != nil {
		return nil, peer.Peer{}, err
	}
	startCtx, cancel := context.WithCancel(ctx)
	go o.Start(startCtx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range o.SnapshotPeers() {
			if p.Address == address {
				return o, p, nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	cancel()
	o.Stop()
	return nil, peer.Peer{}, fmt.Errorf("no peer announced from %s within the discovery window", address)
}

// cliSink renders every orchestrator event as a structured log line; it
// carries no other state.
type cliSink struct {
	log zerolog.Logger
}

func (s *cliSink) OnPeerAdded(p peer.Peer) {
	s.log.Info().Str("peer", p.Address).Str("protocol", string(p.Protocol)).Msg("peer added")
}

func (s *cliSink) OnPeerRemoved(p peer.Peer) {
	s.log.Info().Str("peer", p.Address).Str("protocol", string(p.Protocol)).Msg("peer removed")
}

func (s *cliSink) OnRecvFileBegin(relPath string, size int64) {
	s.log.Info().Str("path", relPath).Int64("size", size).Msg("receiving file")
}

func (s *cliSink) OnRecvFileChunk(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64) {
}

func (s *cliSink) OnRecvFileFinish(relPath string) {
	s.log.Info().Str("path", relPath).Msg("file received")
}

func (s *cliSink) OnRecvText(text string) {
	fmt.Println(text)
}

func (s *cliSink) OnSendFileChunk(relPath string, chunk []byte, bytesInFile, fileSize, bytesTotal, totalSize int64) {
}

func (s *cliSink) OnSendFinish() {
	s.log.Info().Msg("send finished")
}

func (s *cliSink) OnRequestFinish() {
	s.log.Debug().Msg("connection closed")
}
