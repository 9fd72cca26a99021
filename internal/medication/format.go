package medication

import (
	"fmt"
	"strings"

	"koihealth/internal/domain"
)

const safetyNotice = `## ⚠️ 중요 안내

- 이 분석 결과는 **참고용**입니다.
- 정확한 진단과 치료는 반드시 **의료진과 상담**하세요.
- 약물 복용 전 **의사나 약사의 지시**를 따르세요.
- 부작용 발생 시 즉시 복용을 중단하고 **의료진에게 문의**하세요.
`

// FormatMarkdown renders an analysis as markdown followed by the safety
// notice. An empty analysis renders as "".
func FormatMarkdown(analysis domain.MedicationAnalysis) string {
	var b strings.Builder

	if len(analysis.Medicines) > 0 {
		b.WriteString("# 🏥 약물 분석 결과\n\n")
		for i, med := range analysis.Medicines {
			fmt.Fprintf(&b, "## %d. %s\n\n", i+1, med.Name)
			fmt.Fprintf(&b, "### 💊 효능·효과\n%s\n\n", med.Effects)
			fmt.Fprintf(&b, "### 📋 용법·용량\n%s\n\n", med.Usage)
			fmt.Fprintf(&b, "### ⚠️ 주의사항\n%s\n\n", med.Caution)
			if i < len(analysis.Medicines)-1 {
				b.WriteString("---\n\n")
			}
		}
	}

	if len(analysis.Diseases) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# 🔍 관련 질병 정보\n\n")
		for i, disease := range analysis.Diseases {
			fmt.Fprintf(&b, "## %d. %s\n\n", i+1, disease.Name)
			fmt.Fprintf(&b, "### 📖 정의\n%s\n\n", disease.Definition)
			fmt.Fprintf(&b, "### 🔬 원인\n%s\n\n", disease.Cause)
			fmt.Fprintf(&b, "### 🩺 증상\n%s\n\n", disease.Symptom)
			if i < len(analysis.Diseases)-1 {
				b.WriteString("---\n\n")
			}
		}
	}

	if b.Len() == 0 {
		return ""
	}
	b.WriteString("\n\n---\n\n")
	b.WriteString(safetyNotice)
	return b.String()
}
