package events

import "strings"

// Hardware targets supported by the transcription stage.
const (
	HardwareCPU  = "cpu"
	HardwareCUDA = "cuda"
	HardwareROCm = "rocm"
)

// Queue names, one Kafka topic each. Transcription queues are selected per
// event at publish time from the target hardware.
const (
	QueueConvert = "convert_cpu"
	QueueSplit   = "split_cpu"
	QueueFinal   = "final_cpu"

	transcribeQueuePrefix = "transcribe_"
)

// NormalizeHardware lower-cases the preference, maps the legacy "gpu"
// alias to cuda and falls back to cpu for anything unsupported. The second
// return value is false when the fallback was taken, so callers can warn.
func NormalizeHardware(hw string) (string, bool) {
	switch strings.ToLower(hw) {
	case HardwareCPU, "":
		return HardwareCPU, true
	case HardwareCUDA, "gpu":
		return HardwareCUDA, true
	case HardwareROCm:
		return HardwareROCm, true
	default:
		return HardwareCPU, false
	}
}

// TranscribeQueue returns the transcription queue for a hardware
// preference, normalizing it first.
func TranscribeQueue(hw string) string {
	normalized, _ := NormalizeHardware(hw)
	return transcribeQueuePrefix + normalized
}

// TranscribeQueues lists every transcription queue a worker must consume.
func TranscribeQueues() []string {
	return []string{
		transcribeQueuePrefix + HardwareCPU,
		transcribeQueuePrefix + HardwareCUDA,
		transcribeQueuePrefix + HardwareROCm,
	}
}
