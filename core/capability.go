package core

// RecognitionCapability identifies which recognition path a client can run.
// The orchestrator selects one capability at session start and never
// re-probes mid-flow.
type RecognitionCapability int

const (
	// CapabilityStreamingRecognizer is a continuous recognizer that streams
	// interim and final text for the whole listening session.
	CapabilityStreamingRecognizer RecognitionCapability = iota + 1

	// CapabilityCapturePipeline records a bounded clip and sends it to the
	// remote transcription endpoint in one shot.
	CapabilityCapturePipeline
)

func (c RecognitionCapability) String() string {
	switch c {
	case CapabilityStreamingRecognizer:
		return "streaming_recognizer"
	case CapabilityCapturePipeline:
		return "capture_pipeline"
	default:
		return "unknown"
	}
}
