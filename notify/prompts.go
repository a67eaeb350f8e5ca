package notify

import "strings"

// Fallback copy used when no usable completion is obtained after retries.
// The flows always deliver an email; the model only improves it.
const (
	fallbackWelcomeIntro = "Thanks for joining Signalist. You now have the tools to track markets and make smarter moves."
	fallbackNewsSummary  = "Unable to generate summary for today's news."
)

const welcomePromptTemplate = `You are writing the short intro paragraph of a welcome email for Signalist, a stock market tracking app.

The new user's profile:
{{userProfile}}

Write 2-3 sentences of friendly, personalized HTML (a single <p> element, no headings, no markdown) that welcomes them and connects Signalist's watchlists, alerts and daily market digests to their profile. Do not invent facts about the user. Return only the HTML.`

// welcomePrompt renders the personalized welcome prompt for a sign-up event.
func welcomePrompt(ev SignUpEvent) string {
	profile := strings.Join([]string{
		"- Country: " + ev.Country,
		"- Investment goals: " + ev.InvestmentGoals,
		"- Risk tolerance: " + ev.RiskTolerance,
		"- Preferred industry: " + ev.PreferredIndustry,
	}, "\n")
	return strings.Replace(welcomePromptTemplate, "{{userProfile}}", profile, 1)
}

// summaryPrompt asks for a brief summary of the digest headlines.
func summaryPrompt(headlines []string) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following news articles briefly:\n")
	for _, h := range headlines {
		sb.WriteString("- ")
		sb.WriteString(h)
		sb.WriteString("\n")
	}
	return sb.String()
}
