package prompts

const DefaultSystem = "You are a helpful voice assistant. Keep responses concise and conversational."

// ForSession resolves the final system prompt for a session.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}
