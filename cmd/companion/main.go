// Command companion runs the care-receiver side: the voice assistant loop
// plus the signaling link to the caregiver's monitor.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"carelink/capture"
	"carelink/core"
	"carelink/factories"
	"carelink/pipeline"
	"carelink/protocol"
	"carelink/signaling"
	"carelink/store"
	"carelink/synthesis"
)

func main() {
	var settingsPath, audioSource string
	flag.StringVar(&settingsPath, "settings", "settings.json", "path to settings file")
	flag.StringVar(&audioSource, "audio", "", "WAV file replayed as the microphone")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().Warn("no .env.local file found", "error", err)
	}

	settings, err := factories.SettingsConfigFromFile(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
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
	memory.AddUser(store.User{
		ID:           settings.UserID,
		DisplayName:  settings.DisplayName,
		Language:     settings.Language,
		LinkedUserID: settings.PeerID,
	})
	peerID, err := memory.LinkedUserID(ctx, settings.UserID)
	if err != nil {
		logger.Error("failed to resolve linked user", "error", err)
		os.Exit(1)
	}

	channel := signaling.NewChannel(settings.UserID, transport, logger)
	if err := channel.Listen(signaling.Handlers{
		OnIncomingCall: func(p protocol.IncomingCallPayload) {
			fmt.Printf("\n[call] incoming call from %s\n", p.FromName)
		},
		OnCallEnded: func(p protocol.CallEndedPayload) {
			fmt.Printf("\n[call] call ended after %ds\n", p.DurationSeconds)
		},
	}); err != nil {
		logger.Error("failed to join signaling topic", "error", err)
		os.Exit(1)
	}
	defer channel.StopListening()

	var alerter *signaling.Alerter
	if peerID != "" {
		alerter = signaling.NewAlerter(channel, peerID,
			signaling.NewKeywordDetector(nil), memory, logger)
		alerter.OnPrompt = func(alert signaling.PendingAlert) {
			fmt.Printf("\n[alert] heard %q. Send an emergency alert? (confirm/dismiss)\n", alert.Keyword)
		}

		heartbeat := signaling.NewHeartbeat(channel, peerID, settings.DisplayName, logger)
		go heartbeat.Run(ctx)
	}

	device := &capture.WAVFileDevice{Path: audioSource, Realtime: true}
	sink := synthesis.NewWriterSink(os.Stdout)
	p, err := factories.BuildPipeline(settings, device, sink, memory, alerter, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	p.SetUICallbacks(pipeline.UICallbacks{
		OnPhase:   func(phase core.VoicePhase) { fmt.Printf("[%s]\n", phase) },
		OnPartial: func(text string) { fmt.Printf("  ... %s\n", text) },
		OnFinal:   func(text string) { fmt.Printf("  you: %s\n", text) },
		OnResponseDelta: func(delta string) {
			fmt.Print(delta)
		},
		OnNotice: func(message string) { fmt.Printf("  ! %s\n", message) },
	})

	p.Greet(greetingFor(settings.Language, settings.DisplayName))

	go repl(ctx, cancel, p, alerter)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down")
}

func greetingFor(language, name string) string {
	switch language {
	case "es":
		if name != "" {
			return fmt.Sprintf("Hola %s, ¿cómo estás hoy?", name)
		}
		return "Hola, ¿cómo estás hoy?"
	default:
		if name != "" {
			return fmt.Sprintf("Hi %s, how are you today?", name)
		}
		return "Hi, how are you today?"
	}
}

func repl(ctx context.Context, cancel context.CancelFunc, p *pipeline.Pipeline, alerter *signaling.Alerter) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: talk, stop, cancel, confirm, dismiss, quit")
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "talk":
			if err := p.StartListening(); err != nil {
				fmt.Printf("  ! %v\n", err)
			}
		case "stop":
			p.StopListening()
		case "cancel":
			p.CancelInteraction()
		case "confirm":
			if alerter != nil {
				if sent, err := alerter.Confirm(ctx); err != nil {
					fmt.Printf("  ! alert failed: %v\n", err)
				} else if sent {
					fmt.Println("  alert sent")
				}
			}
		case "dismiss":
			if alerter != nil {
				alerter.Dismiss()
			}
		case "quit":
			cancel()
			return
		}
	}
}
