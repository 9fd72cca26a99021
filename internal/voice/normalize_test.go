package voice

import "testing"

func TestNormalizeSpeechText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"## 증상\n**두통**이 *심하면* `병원`에 가세요": "증상 두통이 심하면 병원에 가세요",
		"[질병관리청](https://kdca.go.kr) 안내를 참고하세요":  "질병관리청 안내를 참고하세요",
		"  여러   줄\n\n\n답변  ":                        "여러 줄 답변",
		"":                                          "",
	}
	for input, want := range cases {
		if got := NormalizeSpeechText(input); got != want {
			t.Fatalf("NormalizeSpeechText(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestUtteranceForClamps(t *testing.T) {
	t.Parallel()

	u := utteranceFor("안녕하세요", "", "", 10, 0.1, 0)
	if u.Rate != 2.0 || u.Pitch != 0.5 || u.Volume != 0.1 {
		t.Fatalf("values not clamped: %+v", u)
	}
	if u.Lang != "ko-KR" {
		t.Fatalf("expected default language, got %q", u.Lang)
	}
}
