package grading

import (
	"fmt"
	"strings"
)

func rubricPrompt(rubric string) string {
	return fmt.Sprintf(`Read this rubric and answer two numbers only:

%s

How many maximum points? How many parts to check?

Format: "Points: X, Parts: Y"`, rubric)
}

func segmentPrompt(text string, expectedParts int) string {
	builder := strings.Builder{}
	builder.WriteString("CRITICAL: Return ONLY the JSON array below, with NO additional text before or after. Do not add any explanations, headers, or other text.\n\n")
	builder.WriteString("Analyze the text and extract points based on these rules:\n")
	fmt.Fprintf(&builder, "- THERE ARE %d parts total - this is the expected number of points to extract\n", expectedParts)
	builder.WriteString("- If the text contains ordinal markers in its own language (first, second, third, finally, 1., 2., etc.), extract each marked point separately\n")
	builder.WriteString("- If the text does NOT contain ordinal markers, treat the entire text as ONE single point\n")
	builder.WriteString("- IGNORE any introductory text or preamble that appears BEFORE the first ordinal marker\n")
	builder.WriteString("- Each point includes its ordinal marker and all text until the next marker or the end\n\n")
	builder.WriteString("Return in this EXACT JSON format:\n")
	builder.WriteString("[\n")
	builder.WriteString(`{"point1": "COMPLETE FULL TEXT of the first point"},` + "\n")
	builder.WriteString(`{"point2": "COMPLETE FULL TEXT of the second point"}` + "\n")
	builder.WriteString("... (point1, point2, point3, etc. for each entry)\n")
	builder.WriteString("]\n\n")
	builder.WriteString("IMPORTANT:\n")
	builder.WriteString("- Do NOT artificially split continuous text that lacks ordinal markers\n")
	builder.WriteString("- Include the COMPLETE text for each point, do not truncate or shorten anything\n")
	fmt.Fprintf(&builder, "- Target %d total parts, but prefer natural divisions over forced splitting\n\n", expectedParts)
	builder.WriteString("Text to process:\n")
	builder.WriteString(text)
	builder.WriteString("\n\nRemember: ONLY return the JSON array, nothing else.")
	return builder.String()
}

func feedbackPrompt(referenceText, studentText string, incorrect []string) string {
	builder := strings.Builder{}
	builder.WriteString("This is the full answer:\n")
	builder.WriteString(referenceText)
	builder.WriteString("\n\nThis is the student answer:\n")
	builder.WriteString(studentText)
	builder.WriteString("\n\nThese are the incorrect parts:\n")
	for i, part := range incorrect {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, part)
	}
	builder.WriteString("\nGive encouraging and helpful feedback on the student answer, based on the full answer and the incorrect parts. ")
	builder.WriteString("Focus on correcting the errors. Be concise and professional. ")
	builder.WriteString("IMPORTANT: Your response must be at most 2 sentences.")
	return builder.String()
}
