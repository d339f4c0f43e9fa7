package gateway

// Fallback replies keyed by the identity of the last invoked tool, used
// when the agent's turn ends without user-visible text. The user must
// always receive a reply.
var fallbackReplies = map[string]string{
	ToolSubmitApplication: "Thanks! Your application has been passed to our recruiters. We'll be in touch shortly.",
	ToolFindCandidate:     "I've checked our records. Let's continue: what position are you interested in?",
	ToolSaveContact:       "Got it, I've saved your contact details. What else can I help you with?",
}

const defaultFallbackReply = "Got your message! Is there anything else you'd like to add?"

// FallbackReply synthesizes a minimal acknowledgment from the identity of
// the last tool invoked.
func FallbackReply(lastToolName string) string {
	if reply, ok := fallbackReplies[lastToolName]; ok {
		return reply
	}
	return defaultFallbackReply
}
