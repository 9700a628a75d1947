package agent

import (
	"strings"

	"github.com/shaiso/taskflow/tool"
)

// defaultSystemPrompt собирает системный промпт по списку инструментов,
// когда явный промпт не задан.
func defaultSystemPrompt(tools []*tool.Tool) string {
	var sb strings.Builder
	sb.WriteString("You are a capable and efficient AI assistant. ")
	sb.WriteString("Your goal is to understand the user's intent and provide accurate, ")
	sb.WriteString("clear, and contextually relevant responses.\n\n")

	if len(tools) == 0 {
		sb.WriteString("You do not currently have any external tools. ")
		sb.WriteString("Rely solely on your reasoning and general knowledge.")
		return sb.String()
	}

	sb.WriteString("You have access to the following tools. ")
	sb.WriteString("Use them when they can improve accuracy, retrieve information, ")
	sb.WriteString("or perform external actions:\n\n")
	for _, t := range tools {
		desc := t.Description()
		if desc == "" {
			desc = "No description provided."
		}
		sb.WriteString("- **" + t.Name() + "**: " + desc + "\n")
	}
	sb.WriteString("\nAlways explain your reasoning when invoking tools.")
	return sb.String()
}
