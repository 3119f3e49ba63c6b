package reasoning

import (
	"fmt"
	"strings"
)

// NoResponse is returned as the answer text when the model produced nothing.
const NoResponse = "No response from AI"

const (
	SummarySystemPrompt = "You are a helpful assistant that summarizes pages of a document.\n" +
		"IMPORTANT: The summary should be in under 500 characters."
	summaryPromptPrefix = "Summarize this page text: "
)

const citationInstructions = `You are a helpful AI assistant. The user is asking questions about a PDF document.

IMPORTANT: When answering questions, you must:
1. Base your answers on the provided PDF content
2. Include specific page numbers for any information you reference
3. Format your response as a JSON object with the following structure:
{
  "message": "your answer in markdown",
  "citations": [
    {
      "page": page_number,
      "text": "exact text from the PDF"
    }
  ]
}

4. If you reference information from multiple pages, include citations for each page
5. If the question is not related to the PDF content, provide general assistance without citations

PDF Content by Page:
`

// SummaryPrompt is the user prompt used to summarize one page.
func SummaryPrompt(text string) string {
	return summaryPromptPrefix + text
}

// citationSystemPrompt embeds page numbers and summaries only; raw page text never reaches the model here.
func citationSystemPrompt(pages []Page) string {
	lines := make([]string, len(pages))
	for i, p := range pages {
		lines[i] = fmt.Sprintf("Page %d: %s", p.PageNumber, p.Summary)
	}
	return citationInstructions + strings.Join(lines, "\n\n")
}
