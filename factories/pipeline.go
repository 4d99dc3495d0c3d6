package factories

import (
	"carelink/capture"
	"carelink/conversation"
	"carelink/core"
	"carelink/pipeline"
	"carelink/recognition"
	"carelink/signaling"
	"carelink/store"
	"carelink/synthesis"
)

// BuildRecognition assembles both recognition capabilities from settings.
// The streaming recognizer is nil when no streaming URL is configured.
func BuildRecognition(settings RecognitionSettings, device capture.MicDevice, logger *core.Logger) (recognition.StreamingRecognizer, *capture.Recorder, *recognition.TranscriptionClient) {
	var recognizer recognition.StreamingRecognizer
	if settings.StreamingURL != "" {
		recognizer = recognition.NewWSRecognizer(recognition.WSRecognizerConfig{
			URL:      settings.StreamingURL,
			APIKey:   settings.StreamingToken,
			Language: settings.Language,
		}, logger)
	}
	recorder := capture.NewRecorder(device, capture.DefaultRecorderConfig(), logger)
	transcriber := recognition.NewTranscriptionClient(settings.TranscribeURL, settings.TranscribeAPIKey)
	return recognizer, recorder, transcriber
}

// BuildPipeline assembles the full voice pipeline for the settings' user.
// alerter may be nil when no caregiver is linked.
func BuildPipeline(
	settings SettingsConfig,
	device capture.MicDevice,
	sink synthesis.Sink,
	records store.ConversationStore,
	alerter *signaling.Alerter,
	logger *core.Logger,
) (*pipeline.Pipeline, error) {
	chatProvider, err := BuildChatProvider(settings.Chat, logger)
	if err != nil {
		return nil, err
	}

	exchange := conversation.NewExchange(chatProvider, records, conversation.ExchangeConfig{
		Language: settings.Language,
	}, logger)

	client := synthesis.NewSynthesisClient(synthesis.SynthesisClientConfig{
		Endpoint: settings.Synthesis.Endpoint,
		APIKey:   settings.Synthesis.APIKey,
	}, logger)
	speaker := synthesis.NewSpeaker(client, synthesis.NewCueSynthesizer(capture.TargetSampleRate), sink, synthesis.SpeakerConfig{
		Language: settings.Language,
	}, logger)

	recognizer, recorder, transcriber := BuildRecognition(settings.Recognition, device, logger)

	p := pipeline.New(
		pipeline.Config{UserID: settings.UserID, Language: settings.Language},
		func(callbacks recognition.Callbacks) *recognition.Orchestrator {
			return recognition.NewOrchestrator(device, recognizer, recorder, transcriber,
				settings.Recognition.Config, callbacks, logger)
		},
		exchange,
		speaker,
		alerter,
		logger,
	)
	return p, nil
}
