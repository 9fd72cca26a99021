package chat

import "koihealth/internal/domain"

// ConvertToAPIHistory pairs every user turn with the assistant turn directly
// after it. User turns without an immediate answer are dropped.
func ConvertToAPIHistory(turns []domain.ConversationTurn) []domain.HistoryItem {
	history := make([]domain.HistoryItem, 0, len(turns)/2)
	for i := 0; i+1 < len(turns); i++ {
		if turns[i].Role != domain.RoleUser || turns[i+1].Role != domain.RoleAssistant {
			continue
		}
		history = append(history, domain.HistoryItem{
			Inputs:  turns[i].Text,
			Outputs: turns[i+1].Text,
		})
		i++
	}
	return history
}
