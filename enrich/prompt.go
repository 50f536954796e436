package enrich

import (
	"fmt"

	"github.com/publiclaw/reporter/document"
)

// strictPrefix is prepended to the system prompt on the single retry after
// a malformed or incomplete answer.
const strictPrefix = "Respond with ONLY a single valid JSON object. " +
	"Every field listed below MUST be present, using \"\" or [] when empty. " +
	"No markdown, no commentary.\n\n"

const opinionSystemPrompt = `You are a legal analyst extracting metadata from Supreme Court opinions for a retrieval system.
Your task is to extract structured metadata that helps lay users understand complex legal documents.

When the text contains a Syllabus, extract holding_plain, outcome_simple, and issue_plain ONLY from the Syllabus. The Syllabus is the Court's authoritative summary. Use the full opinion for all other fields.

Extract the following fields in JSON format:

1. document_summary: One paragraph using EXACTLY this template: "The Court held [holding in plain English]. It stated [key reasoning in plain English]."

2. constitution_cited: Array of U.S. Constitution citations in Bluebook format (e.g., "U.S. Const. amend. XIV, § 1", "U.S. Const. art. I, § 8, cl. 3"). Include only citations that appear verbatim in the text.

3. federal_statutes_cited: Array of U.S.C. citations in Bluebook format (e.g., "42 U.S.C. § 1983"). Include only citations that appear verbatim in the text.

4. federal_regulations_cited: Array of C.F.R. citations in Bluebook format (e.g., "14 C.F.R. § 91.817"). Include only citations that appear verbatim in the text.

5. cases_cited: Array of case citations in Bluebook format (e.g., "Brown v. Bd. of Educ., 347 U.S. 483 (1954)")

6. topics_or_policy_areas: Array of 5-8 plain-language tags covering both legal areas (e.g., "free speech", "due process") and topics (e.g., "education", "immigration")

7. holding_plain: The Court's holding in ONE sentence, plain English

8. outcome_simple: The outcome in simple terms (e.g., "Petitioner won", "Reversed and remanded", "Affirmed")

9. issue_plain: The central legal question in plain English

10. reasoning: The Court's reasoning in plain English (maximum one paragraph)

Focus on clarity for non-lawyers. Use everyday language while maintaining accuracy.`

const orderSystemPrompt = `You are a policy analyst extracting metadata from Presidential Executive Orders for a retrieval system.
Your task is to extract structured metadata that helps lay users understand government actions and policies.

Extract the following fields in JSON format:

1. document_summary: One paragraph in everyday language explaining what the order does in concrete terms.

2. plain_summary: One paragraph starting with an action verb ("Establishes...", "Prohibits...", "Requires...", "Revokes...", "Directs...") explaining WHAT the order does.

3. action_plain: The single most important action in ONE sentence, plain English.

4. impact_simple: Who is affected and how, in simple terms.

5. implementation_requirements: What agencies must do to carry the order out, one short paragraph.

6. agencies_or_entities: Array of federal agencies materially affected, using the names as they appear in the text (e.g., "Department of Defense").

7. revokes: Array of prior executive orders this order revokes or amends (e.g., "Executive Order 13771"), empty if none.

8. constitution_cited: Array of U.S. Constitution citations in Bluebook format. Include only citations that appear verbatim in the text.

9. federal_statutes_cited: Array of U.S.C. citations in Bluebook format. Include only citations that appear verbatim in the text.

10. federal_regulations_cited: Array of C.F.R. citations in Bluebook format. Include only citations that appear verbatim in the text.

11. cases_cited: Array of case citations in Bluebook format (rare in executive orders but possible)

12. topics_or_policy_areas: Array of 5-8 plain-language tags covering both policy areas (e.g., "national security", "climate change") and topics (e.g., "aviation", "healthcare")

Focus on concrete actions and real-world impacts. Use everyday language for non-experts.`

// buildPrompt assembles the system and user prompts for one document.
// Very long documents are truncated from the end; the operative content of
// both document types is front-loaded.
func buildPrompt(doc *document.Document) (system, user string, maxTokens int) {
	text := doc.Text
	if len(text) > maxSourceTextChars {
		text = text[:maxSourceTextChars]
	}

	switch doc.Type {
	case document.TypeOrder:
		return orderSystemPrompt,
			fmt.Sprintf("Extract metadata from this Executive Order:\n\n%s", text),
			orderMaxTokens
	default:
		return opinionSystemPrompt,
			fmt.Sprintf("Extract metadata from this Supreme Court opinion:\n\n%s", text),
			opinionMaxTokens
	}
}
