package agent

import "strings"

const commandsPrompt = `Convert the user request to shell commands.
Return one command per line, nothing else.
For multiple tasks, return multiple lines.
If unsafe or unclear, return: REFUSE

User request: `

// parseCommandLines turns raw model output into a command list. A bare
// REFUSE (or an empty response) yields no commands. Code fences are
// stripped; blank lines are dropped.
func parseCommandLines(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" || content == "REFUSE" {
		return nil
	}

	var commands []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if line == "REFUSE" {
			return nil
		}
		commands = append(commands, line)
	}
	return commands
}
