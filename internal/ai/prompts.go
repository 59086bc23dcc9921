package ai

import (
	"fmt"
	"strings"
)

// Prompt builders for the documentation generator. Each returns a
// CompletionRequest ready for any Engine. Temperatures are tuned per prompt:
// factual file summaries run cold, marketing copy runs warmer.
const (
	tempSummary   = 0.3
	tempFeatures  = 0.5
	tempUseCases  = 0.5
	tempExecutive = 0.6
	tempMarketing = 0.6

	codeExcerptLimit = 3000
	analysisLimit    = 2000
)

// truncate caps s at limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.ToValidUTF8(s[:limit], "")
}

// parseBulletList extracts "- " prefixed lines from a model response.
// Models occasionally wrap lists in prose; anything that is not a bullet
// is dropped.
func parseBulletList(s string) []string {
	var items []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(line, "- "))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func summarizeFilePrompt(path, language, code string) CompletionRequest {
	prompt := fmt.Sprintf(`Analyze this %s code file and provide a clear, concise summary.

File: %s

Code:
`, language, path)
	prompt += "```" + language + "\n" + truncate(code, codeExcerptLimit) + "\n```\n"
	prompt += `
Instructions:
1. First, identify the PRIMARY purpose of this file (what problem does it solve?)
2. Then, list the MAIN functionality it provides
3. Finally, note any important patterns, frameworks, or architectural decisions

Write a 2-3 sentence summary that focuses on WHAT the code does and WHY it exists, not HOW it works.
Avoid generic statements. Be specific about this particular file's role in the project.`

	return CompletionRequest{
		System:      "You are an expert software architect who understands code at a high level. You explain code purpose clearly and concisely, focusing on business value and architectural decisions.",
		Prompt:      prompt,
		Temperature: tempSummary,
	}
}

func extractFeaturesPrompt(analysisJSON string) CompletionRequest {
	prompt := fmt.Sprintf(`You are analyzing a software product to identify its key features for a product page.

Code Analysis Data:
%s

Task: Extract 5-7 product features that would matter to end users or business stakeholders.

Guidelines:
1. Focus on USER-FACING capabilities, not implementation details
2. Each feature should answer: "What can users DO with this?"
3. Use benefit-driven language (e.g., "Automate email follow-ups" not "Has email service")
4. Avoid technical jargon - write for non-technical stakeholders
5. Be specific about the actual functionality, not generic capabilities

Example good features:
- "Track and manage customer leads in a centralized dashboard"
- "Automatically send personalized follow-up emails based on user behavior"
- "Generate detailed analytics reports with customizable metrics"

Example bad features:
- "Uses React for the frontend" (implementation detail)
- "Has a database" (too generic)
- "Scalable architecture" (vague)

Format: Return ONLY a list with each feature on a new line starting with "- "
Focus on what makes THIS product unique and valuable.`, truncate(analysisJSON, analysisLimit))

	return CompletionRequest{
		System:      "You are a product manager with expertise in translating technical capabilities into clear, compelling product features. You understand what matters to users and stakeholders.",
		Prompt:      prompt,
		Temperature: tempFeatures,
	}
}

func executiveSummaryPrompt(name, description string, languages, features []string) CompletionRequest {
	if description == "" {
		description = "N/A"
	}
	prompt := fmt.Sprintf(`Create a compelling executive summary for this software product.

Product Information:
- Name: %s
- Description: %s
- Tech Stack: %s
- Key Features: %s

Instructions:
Write a 3-4 sentence executive summary following this structure:

1. Opening: What is this product and what problem does it solve?
2. Value Proposition: What makes it valuable? What benefits does it provide?
3. Technology: Briefly mention the tech stack (only if relevant to the value prop)
4. Impact: What outcomes can users/businesses expect?

Guidelines:
- Write for C-level executives and business decision-makers
- Focus on BUSINESS VALUE and OUTCOMES, not technical features
- Be specific about what THIS product does (avoid generic statements)
- Use clear, professional language
- Avoid buzzwords and marketing fluff
- Don't mention "our product" or "we" - write in third person

Write the executive summary now:`,
		name, description, strings.Join(languages, ", "), strings.Join(firstN(features, 5), ", "))

	return CompletionRequest{
		System:      "You are a senior product marketing strategist who writes compelling, clear executive summaries. You understand how to communicate technical products to business audiences.",
		Prompt:      prompt,
		Temperature: tempExecutive,
	}
}

func useCasesPrompt(features, languages []string) CompletionRequest {
	var list strings.Builder
	for _, f := range features {
		list.WriteString("- " + f + "\n")
	}

	prompt := fmt.Sprintf(`Generate 4-5 realistic, specific use cases for this software product.

Product Features:
%s
Tech Stack: %s

Instructions:
For each use case, describe a SPECIFIC scenario where this product solves a real problem.

Format for each use case:
"[User/Company Type]: [Specific scenario and problem] -> [How product solves it] -> [Measurable outcome]"

Guidelines:
1. Be SPECIFIC - name actual user types, industries, or scenarios
2. Focus on PROBLEMS being solved, not just features being used
3. Include MEASURABLE outcomes or benefits
4. Make it realistic and relatable
5. Each use case should be 2-3 sentences max

Example good use cases:
- "E-commerce Startup: A growing online store struggles to follow up with abandoned cart customers manually. Using automated email sequences, they recover 15%% of abandoned carts and increase monthly revenue."
- "Sales Team at SaaS Company: Sales reps spend 3 hours daily manually updating CRM and sending follow-ups. The automated lead tracking and email system saves 15 hours per week per rep, allowing them to focus on closing deals."

Example bad use cases:
- "Businesses can use this to manage data" (too vague)
- "Users can create dashboards" (just describing a feature)

Return ONLY a list with each use case on a new line starting with "- "
Make each use case tell a mini-story of transformation.`,
		list.String(), strings.Join(languages, ", "))

	return CompletionRequest{
		System:      "You are a solutions consultant who understands how software solves real business problems. You create compelling, specific use cases that resonate with potential customers.",
		Prompt:      prompt,
		Temperature: tempUseCases,
	}
}

func marketingPointsPrompt(name string, features []string, stackJSON string) CompletionRequest {
	prompt := fmt.Sprintf(`Create 5-6 compelling marketing talking points for this product.

Product Information:
- Name: %s
- Features: %s
- Tech Stack: %s

Instructions:
Each talking point should be a single, punchy sentence that highlights a unique selling point.

Format: [Benefit/Outcome] + [How/Why it matters]

Guidelines:
1. Lead with the BENEFIT or OUTCOME, not the feature
2. Be SPECIFIC - use numbers, comparisons, or concrete examples when possible
3. Focus on competitive advantages or unique capabilities
4. Avoid generic claims ("best", "powerful", "innovative")
5. Make it conversational and persuasive
6. Each point should stand alone as a compelling reason to use the product

Example good talking points:
- "Automate 80%% of your lead follow-up process, freeing your sales team to focus on closing deals instead of manual outreach."
- "Get your first campaign running in under 10 minutes with pre-built templates and intuitive drag-and-drop design."
- "Track every customer interaction in one place, eliminating the need to juggle between 5 different tools."

Example bad talking points:
- "Built with modern technology" (vague, not a benefit)
- "Easy to use interface" (generic, everyone claims this)

Return ONLY a list with each talking point on a new line starting with "- "
Make each point something a salesperson would actually say to a prospect.`,
		name, strings.Join(features, ", "), stackJSON)

	return CompletionRequest{
		System:      "You are a top-performing sales professional who knows how to communicate product value clearly and persuasively. You focus on outcomes and benefits that resonate with buyers.",
		Prompt:      prompt,
		Temperature: tempMarketing,
	}
}

func firstN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[:n]
}
