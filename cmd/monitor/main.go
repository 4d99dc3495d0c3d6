// Command monitor runs the caregiver side: peer presence, demo calls, and
// emergency alert handling.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"carelink/core"
	"carelink/factories"
	"carelink/protocol"
	"carelink/signaling"
	"carelink/store"
)

func main() {
	var settingsPath string
	flag.StringVar(&settingsPath, "settings", "settings.json", "path to settings file")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().Warn("no .env.local file found", "error", err)
	}

	settings, err := factories.SettingsConfigFromFile(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	if settings.PeerID == "" {
		fmt.Fprintln(os.Stderr, "settings: peer_id is required for the monitor")
		os.Exit(1)
	}

	if settings.LogFile != "" {
		core.SetLogger(*core.NewProductionLogger(settings.LogFile))
	}
	logger := core.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := factories.BuildSignalingTransport(settings.Signaling, logger)
	if err != nil {
		logger.Error("signaling transport unavailable", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	memory := store.NewMemoryStore()
	tracker := signaling.NewPresenceTracker()
	emergencies := signaling.NewEmergencyState(memory, logger)

	notifier := signaling.NewAlertNotifier(16000, logger)
	notifier.PlaySound = func(pcm []byte) {
		logger.Info("playing alert pattern", "bytes", len(pcm))
	}
	emergencies.OnRaise = notifier.Notify

	calls := &callSlot{}

	channel := signaling.NewChannel(settings.UserID, transport, logger)
	err = channel.Listen(signaling.Handlers{
		OnPresence: func(p protocol.PresencePayload) {
			tracker.Observe(p)
		},
		OnEmergency: func(p protocol.EmergencyPayload) {
			emergencies.Raise(p)
			fmt.Printf("\n[EMERGENCY] %s needs attention: %q\n", p.UserID, p.Note)
		},
		OnCallEnded: func(p protocol.CallEndedPayload) {
			if call := calls.get(); call != nil {
				call.HandleRemoteEnd(p)
			}
			fmt.Printf("\n[call] peer hung up after %ds\n", p.DurationSeconds)
		},
	})
	if err != nil {
		logger.Error("failed to join signaling topic", "error", err)
		os.Exit(1)
	}
	defer channel.StopListening()

	heartbeat := signaling.NewHeartbeat(channel, settings.PeerID, settings.DisplayName, logger)
	go heartbeat.Run(ctx)

	go repl(ctx, cancel, settings, channel, tracker, emergencies, calls, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down")
}

// callSlot shares the active outgoing call between the repl and the signaling
// handlers, so a remote hangup can reach it.
type callSlot struct {
	mu   sync.Mutex
	call *signaling.Call
}

func (s *callSlot) get() *signaling.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call
}

func (s *callSlot) set(c *signaling.Call) {
	s.mu.Lock()
	s.call = c
	s.mu.Unlock()
}

func repl(
	ctx context.Context,
	cancel context.CancelFunc,
	settings factories.SettingsConfig,
	channel *signaling.Channel,
	tracker *signaling.PresenceTracker,
	emergencies *signaling.EmergencyState,
	calls *callSlot,
	logger *core.Logger,
) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: status, call, hangup, resolve, quit")
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "status":
			fmt.Printf("  peer %s: %s\n", settings.PeerID, tracker.Status(settings.PeerID))
			if alert := emergencies.Active(); alert != nil {
				fmt.Printf("  EMERGENCY active since %s: %q\n",
					alert.OccurredAt.Format("15:04:05"), alert.Note)
			}
		case "call":
			if active := calls.get(); active != nil && active.State() != signaling.CallEnded {
				fmt.Println("  ! a call is already in progress")
				continue
			}
			call, err := signaling.StartCall(channel, settings.PeerID, settings.DisplayName,
				func(u signaling.CallUpdate) {
					switch u.State {
					case signaling.CallCalling:
						fmt.Println("  calling...")
					case signaling.CallConnected:
						fmt.Printf("\r  connected %s", u.Elapsed)
					case signaling.CallEnded:
						fmt.Println("\n  call ended")
					}
				}, logger)
			if err != nil {
				fmt.Printf("  ! call failed: %v\n", err)
				continue
			}
			calls.set(call)
		case "hangup":
			if active := calls.get(); active != nil {
				active.End("hangup")
				calls.set(nil)
			}
		case "resolve":
			if err := emergencies.Resolve(ctx, "resolved by caregiver"); err != nil {
				fmt.Printf("  ! failed to record resolution: %v\n", err)
			} else {
				fmt.Println("  alert resolved")
			}
		case "quit":
			if active := calls.get(); active != nil {
				active.End("shutdown")
			}
			cancel()
			return
		}
	}
}
