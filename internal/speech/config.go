package speech

// DefaultVoice is the Azure neural voice used when no voice is selected.
const DefaultVoice = "ko-KR-SunHiNeural"

// DefaultLang is the SSML language used when an utterance names none.
const DefaultLang = "ko-KR"

// DefaultAudioFormat is the format requested from Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)
