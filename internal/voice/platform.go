package voice

import (
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"koihealth/internal/domain"
)

var (
	mobileAgentPattern  = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
	iosAgentPattern     = regexp.MustCompile(`iPad|iPhone|iPod`)
	androidAgentPattern = regexp.MustCompile(`(?i)Android`)
)

// DetectPlatform classifies a user agent string.
func DetectPlatform(userAgent string) domain.Platform {
	switch {
	case iosAgentPattern.MatchString(userAgent):
		return domain.PlatformIOS
	case androidAgentPattern.MatchString(userAgent):
		return domain.PlatformAndroid
	case mobileAgentPattern.MatchString(userAgent):
		return domain.PlatformMobile
	default:
		return domain.PlatformDesktop
	}
}

// ParsePlatform maps a config value to a platform. Empty or unknown values
// mean desktop.
func ParsePlatform(value string) domain.Platform {
	switch domain.Platform(strings.ToLower(strings.TrimSpace(value))) {
	case domain.PlatformIOS:
		return domain.PlatformIOS
	case domain.PlatformAndroid:
		return domain.PlatformAndroid
	case domain.PlatformMobile:
		return domain.PlatformMobile
	default:
		return domain.PlatformDesktop
	}
}

// Profile holds every platform-dependent voice behavior. It is selected once
// when the controller is built.
type Profile struct {
	Platform domain.Platform
	// LongPress is how long the capture control must be held before listening starts.
	LongPress time.Duration
	// RequiresActivation means the synthesis engine must be unlocked by the
	// silent two-phase activation before it plays anything.
	RequiresActivation bool
	// RequiresGesture means audio only starts while a gesture lease is live.
	RequiresGesture bool
	// Notice is shown once when the platform has known limitations.
	Notice string
}

// ProfileFor returns the profile of platform.
func ProfileFor(platform domain.Platform) Profile {
	switch platform {
	case domain.PlatformIOS:
		return Profile{
			Platform:           platform,
			LongPress:          100 * time.Millisecond,
			RequiresActivation: true,
			RequiresGesture:    true,
			Notice:             "iOS Safari는 음성 인식을 지원하지 않습니다. Chrome 앱을 사용해주세요.",
		}
	case domain.PlatformAndroid:
		return Profile{
			Platform:           platform,
			LongPress:          100 * time.Millisecond,
			RequiresActivation: true,
			RequiresGesture:    true,
			Notice:             "Android에서는 Chrome 브라우저를 사용하시면 더 좋은 음성 인식 성능을 얻을 수 있습니다.",
		}
	case domain.PlatformMobile:
		return Profile{
			Platform:           platform,
			LongPress:          100 * time.Millisecond,
			RequiresActivation: true,
			RequiresGesture:    true,
		}
	default:
		return Profile{
			Platform:  domain.PlatformDesktop,
			LongPress: 150 * time.Millisecond,
		}
	}
}

func (p Profile) mobile() bool {
	return p.Platform != domain.PlatformDesktop
}

// DefaultVoice picks the voice used when the user selected none.
func (p Profile) DefaultVoice(voices []domain.Voice) (domain.Voice, bool) {
	var preferences []func(domain.Voice) bool
	switch p.Platform {
	case domain.PlatformIOS:
		preferences = []func(domain.Voice) bool{
			nameContains("유나"),
			nameContains("수진"),
			langContains("ko"),
		}
	case domain.PlatformAndroid:
		preferences = []func(domain.Voice) bool{
			langContains("ko-KR"),
			nameContains("korean"),
			langContains("ko"),
		}
	default:
		preferences = []func(domain.Voice) bool{langContains("ko")}
	}

	for _, matches := range preferences {
		if voice, ok := lo.Find(voices, matches); ok {
			return voice, true
		}
	}
	return domain.Voice{}, false
}

func nameContains(fragment string) func(domain.Voice) bool {
	fragment = strings.ToLower(fragment)
	return func(v domain.Voice) bool {
		return strings.Contains(strings.ToLower(v.Name), fragment)
	}
}

func langContains(fragment string) func(domain.Voice) bool {
	return func(v domain.Voice) bool {
		return strings.Contains(v.Lang, fragment)
	}
}

// CaptureErrorMessage returns the user-facing message for a recognition
// failure. Aborted captures have no message.
func (p Profile) CaptureErrorMessage(code domain.RecognitionErrorCode) string {
	switch code {
	case domain.RecognitionAborted:
		return ""
	case domain.RecognitionNoSpeech:
		if p.mobile() {
			return "음성이 감지되지 않았습니다. 마이크에 가까이 대고 다시 시도해주세요."
		}
		return "음성이 감지되지 않았습니다. 다시 시도해주세요."
	case domain.RecognitionAudioCapture:
		return "마이크 접근 권한이 필요합니다."
	case domain.RecognitionNotAllowed:
		if p.mobile() {
			return "마이크 권한이 거부되었습니다. 브라우저 설정에서 허용해주세요."
		}
		return "마이크 권한이 거부되었습니다. 설정에서 허용해주세요."
	case domain.RecognitionNetwork:
		if p.mobile() {
			return "네트워크 연결을 확인해주세요. Wi-Fi 또는 모바일 데이터를 확인하세요."
		}
		return "네트워크 오류가 발생했습니다."
	default:
		return "음성 인식 오류가 발생했습니다."
	}
}
