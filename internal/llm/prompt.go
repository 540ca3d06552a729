package llm

import (
	"encoding/json"
	"strings"
)

// maxPromptText caps how much resume text is inlined into a prompt.
const maxPromptText = 12000

func buildParsePrompt(rawText string) (system, user string) {
	system = strings.Join([]string{
		"You are an expert resume parser.",
		"Extract information from the provided resume text and format it as a JSON object.",
		"Adhere strictly to the provided JSON schema.",
		"Do not add any text or explanation outside of the JSON structure.",
		"Never output null; omit fields that are not present.",
	}, " ")
	user = "Resume text:\n---\n" + clip(rawText) + "\n---"
	return system, user
}

func buildBiasPrompt(rawText string) (system, user string) {
	system = strings.Join([]string{
		"You are an expert, unbiased HR screening assistant.",
		"Analyze the provided resume text only for potential hiring biases.",
		"Look for language related to gender (pronouns, names that strongly imply gender),",
		"age (graduation dates far in the past, age-related terms),",
		"ethnicity or national origin (names, locations),",
		"and marital or family status.",
		"Return your findings only as a JSON object adhering to the provided schema.",
		`If no biases are found, return {"biasDetected": false, "findings": []}.`,
	}, " ")
	user = "Resume text to analyze:\n---\n" + clip(rawText) + "\n---"
	return system, user
}

func buildAnonymizePrompt(parsed json.RawMessage) (system, user string) {
	system = strings.Join([]string{
		"You are an expert data anonymizer.",
		"Take the provided JSON object and remove all personally identifiable information.",
		`Redact every field within 'personalInfo.name' and 'personalInfo.contact' by replacing its value with "[REDACTED]".`,
		"Return the entire original JSON structure with only those fields redacted.",
	}, " ")
	user = "JSON object to anonymize:\n---\n" + clip(string(parsed)) + "\n---"
	return system, user
}

func buildSalaryPrompt(parsed json.RawMessage) (system, user string) {
	system = strings.Join([]string{
		"You are an expert financial analyst and HR compensation specialist.",
		"Provide a salary estimation for the candidate based on their parsed resume data.",
		"Consider their experience level, industry, location and key skills.",
		"Use the currency appropriate for the candidate's location (e.g. INR, USD, EUR);",
		"if the location is [REDACTED], default to USD.",
		"Provide brief comments explaining your reasoning.",
		"Return your estimation only as a JSON object adhering to the provided schema.",
	}, " ")
	user = "Parsed resume data:\n---\n" + clip(string(parsed)) + "\n---"
	return system, user
}

func buildCareerPrompt(parsed json.RawMessage) (system, user string) {
	system = strings.Join([]string{
		"You are an expert career coach and industry analyst.",
		"Analyze the provided parsed resume and suggest a future career path:",
		"a list of 3-5 realistic next-step job titles,",
		"a list of 2-3 key skills or technologies to learn to advance,",
		"and a brief comment explaining your reasoning.",
		"Return your analysis only as a JSON object adhering to the provided schema.",
	}, " ")
	user = "Parsed resume data:\n---\n" + clip(string(parsed)) + "\n---"
	return system, user
}

func clip(s string) string {
	if len(s) > maxPromptText {
		return s[:maxPromptText]
	}
	return s
}
