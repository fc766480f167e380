package analysis

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

const systemPrompt = `You are an expert in analyzing application error logs.
Given an error message and stack trace, explain:
1. The most likely root cause.
2. The scope of impact on users and other features.
3. A concrete fix, with code changes where possible.
Be specific and concise. Answer in Markdown.`

const codebaseSystemPrompt = `You are an expert in analyzing application error logs who has been given the full source code of the failing application.
Given an error message, its stack trace and the codebase, explain:
1. The most likely root cause, citing the files and functions involved.
2. The scope of impact on users and other features.
3. A concrete fix, with code changes against the given source.
Be specific and concise. Answer in Markdown.`

// BuildMessages renders the two-turn prompt for record. snapshot may be empty, in which
// case the repository URL is given instead of the code.
func BuildMessages(record *models.ErrorRecord, feature models.FeatureInfo, snapshot string) []models.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Root feature: %s\n", record.RootFeature)
	if record.Feature != "" {
		fmt.Fprintf(&b, "Feature: %s\n", record.Feature)
	}
	fmt.Fprintf(&b, "\nError message:\n%s\n", record.Message)
	fmt.Fprintf(&b, "\nStack trace:\n%s\n", record.Stack)

	system := systemPrompt
	if snapshot != "" {
		system = codebaseSystemPrompt
		fmt.Fprintf(&b, "\nCodebase (%s):\n%s\n", feature.URL, snapshot)
	} else {
		fmt.Fprintf(&b, "\nRepository: %s\n", feature.URL)
	}

	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: b.String()},
	}
}
