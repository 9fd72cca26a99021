package medication

import (
	"strings"

	"koihealth/internal/domain"
)

type guidance struct {
	fileHints  []string
	queryHints []string
	analysis   domain.MedicationAnalysis
}

// builtInGuidance is matched in order against the file name and question.
var builtInGuidance = []guidance{
	{
		fileHints:  []string{"tylenol", "acetaminophen"},
		queryHints: []string{"타이레놀", "아세트아미노펜", "해열", "두통"},
		analysis: domain.MedicationAnalysis{
			Medicines: []domain.Medicine{{
				Name:    "타이레놀정 500mg (아세트아미노펜)",
				Effects: "발열, 두통, 치통, 생리통, 관절통, 근육통 등의 해열 및 진통에 사용됩니다. 중추신경계에서 프로스타글란딘 합성을 억제하여 통증과 발열을 완화합니다.",
				Usage:   "성인: 1회 500mg~1000mg을 4~6시간마다 복용, 1일 최대 4000mg 초과 금지. 충분한 물과 함께 복용하며 공복 시에도 복용 가능합니다.",
				Caution: "간 질환 환자나 알코올을 자주 섭취하는 분은 주의가 필요합니다. 다른 아세트아미노펜 함유 제제와 중복 복용 금지. 3일 이상 복용 시 의사 상담 필요.",
			}},
		},
	},
	{
		fileHints:  []string{"cold"},
		queryHints: []string{"감기", "콧물", "기침", "목아픔"},
		analysis: domain.MedicationAnalysis{
			Medicines: []domain.Medicine{{
				Name:    "종합감기약 (복합제제)",
				Effects: "감기로 인한 발열, 두통, 콧물, 코막힘, 재채기, 인후통, 기침, 가래 등의 제반 증상 완화에 사용됩니다.",
				Usage:   "성인 기준 1회 1-2정을 1일 3회 식후 복용. 충분한 수분 섭취와 함께 복용하는 것이 좋습니다.",
				Caution: "운전이나 기계 조작 시 주의하세요. 알코올과 함께 복용 금지. 다른 감기약과 중복 복용하지 않도록 주의.",
			}},
			Diseases: []domain.Disease{{
				Name:       "급성 상기도감염 (감기)",
				Definition: "바이러스에 의한 상부 호흡기의 급성 염증성 질환으로, 코, 인두, 후두 등이 감염되어 나타나는 일반적인 질병입니다.",
				Cause:      "리노바이러스, 코로나바이러스, 아데노바이러스 등의 바이러스 감염이 주원인. 면역력 저하, 스트레스, 급격한 온도 변화 등이 유발 요인.",
				Symptom:    "콧물, 코막힘, 재채기, 인후통, 기침, 미열, 두통, 전신 피로감이 나타나며, 대부분 7-10일 내 자연 회복됩니다.",
			}},
		},
	},
	{
		queryHints: []string{"소화", "위", "속쓰림", "배아픔", "복통"},
		analysis: domain.MedicationAnalysis{
			Medicines: []domain.Medicine{{
				Name:    "베아제정 (소화효소제)",
				Effects: "소화불량, 위부팽만감, 식욕부진 등의 증상 개선에 도움을 줍니다. 각종 소화효소가 음식물의 소화를 촉진시킵니다.",
				Usage:   "성인 기준 1회 1-2정을 1일 3회 식후 복용. 물과 함께 씹지 말고 삼켜서 복용하세요.",
				Caution: "급성 췌장염 환자는 복용 금지. 알레르기 반응 발생 시 즉시 복용 중단. 장기간 복용 시 의사와 상담하세요.",
			}},
			Diseases: []domain.Disease{{
				Name:       "기능성 소화불량",
				Definition: "기질적인 원인 없이 발생하는 만성적인 소화불량 증상으로, 위 기능 장애로 인해 나타나는 질환입니다.",
				Cause:      "스트레스, 불규칙한 식습관, 과식, 급하게 먹는 습관, 헬리코박터 파일로리 감염 등이 원인이 될 수 있습니다.",
				Symptom:    "상복부 불편감, 조기 포만감, 식후 복부 팽만, 구역감, 트림, 가슴 쓰림 등의 증상이 나타납니다.",
			}},
		},
	},
	{
		queryHints: []string{"항생제", "염증", "화농"},
		analysis: domain.MedicationAnalysis{
			Medicines: []domain.Medicine{{
				Name:    "아목시실린 캡슐 (항생제)",
				Effects: "세균 감염으로 인한 호흡기 감염, 요로감염, 피부 감염 등의 치료에 사용되는 페니실린계 항생제입니다.",
				Usage:   "성인 기준 1회 250-500mg을 8시간마다 복용. 반드시 처방된 기간 동안 완전히 복용해야 합니다.",
				Caution: "페니실린 알레르기가 있는 경우 복용 금지. 설사, 복통 등의 부작용 발생 시 의사와 상담. 임의로 복용 중단하지 마세요.",
			}},
			Diseases: []domain.Disease{{
				Name:       "세균성 감염",
				Definition: "세균이 인체에 침입하여 발생하는 감염성 질환으로, 다양한 부위에서 염증 반응을 일으킵니다.",
				Cause:      "포도상구균, 연쇄상구균, 대장균 등의 세균이 상처나 점막을 통해 침입하여 감염을 일으킵니다.",
				Symptom:    "발열, 통증, 부종, 홍반, 화농 등이 나타나며, 감염 부위에 따라 추가 증상이 발생할 수 있습니다.",
			}},
		},
	},
}

var genericGuidance = domain.MedicationAnalysis{
	Medicines: []domain.Medicine{{
		Name:    "약물 분석 결과",
		Effects: "업로드하신 이미지를 분석한 결과입니다. 정확한 약물 식별을 위해서는 포장지의 약물명이나 성분이 선명하게 보이는 사진을 업로드해 주세요.",
		Usage:   "정확한 용법·용량은 약물 포장지의 설명서를 참조하시거나 의사나 약사와 상담하시기 바랍니다.",
		Caution: "모든 약물은 정해진 용법·용량을 준수해야 하며, 부작용 발생 시 즉시 복용을 중단하고 의료진과 상담하세요.",
	}},
}

func mockAnalysis(fileName, question string) domain.MedicationAnalysis {
	fileName = strings.ToLower(fileName)
	question = strings.ToLower(question)
	for _, entry := range builtInGuidance {
		if containsAny(fileName, entry.fileHints) || containsAny(question, entry.queryHints) {
			return entry.analysis
		}
	}
	return genericGuidance
}

func containsAny(text string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
