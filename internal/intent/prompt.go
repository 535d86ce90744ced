package intent

import (
	"fmt"
	"strings"
)

func classificationSystemPrompt() string {
	names := make([]string, 0, len(allIntents))
	for _, i := range allIntents {
		names = append(names, string(i))
	}
	return fmt.Sprintf(`You classify SMS and email replies from real-estate leads.

Valid intents: %s

Disambiguation rules:
- "text me instead", "email is better": channel_prefer_* (the lead still wants contact). Never opt_out.
- "not so many texts", "once a week is fine": channel_reduction. Never opt_out.
- opt_out only when the lead clearly wants all contact to end (STOP, unsubscribe, stop texting me, remove me).
- "call me next month", "reach out after the holidays": deferred_followup, not objection_not_ready.
- A lead asking for a human or a real person: escalation_request.

Respond ONLY with a JSON object:
{"primary_intent": "<intent>", "confidence": 0.0-1.0, "secondary_intents": [{"intent": "<intent>", "confidence": 0.0-1.0}], "sentiment": "positive|negative|neutral", "reasoning": "<one sentence>"}`,
		strings.Join(names, ", "))
}

func classificationUserPrompt(message string, dctx *Context) string {
	var b strings.Builder
	if dctx != nil {
		if dctx.LastAIMessage != "" {
			fmt.Fprintf(&b, "Our previous message: %q\n", dctx.LastAIMessage)
		}
		if dctx.CurrentState != "" {
			fmt.Fprintf(&b, "Conversation state: %s\n", dctx.CurrentState)
		}
	}
	fmt.Fprintf(&b, "Lead message: %q", message)
	return b.String()
}
