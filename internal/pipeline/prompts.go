package pipeline

import (
	"fmt"
	"strings"

	"github.com/tailord/tailord/internal/core"
)

func cvPrompt(req core.GenerationRequest, brief string) string {
	var b strings.Builder

	b.WriteString("You are an expert CV writer. Tailor the following CV for the role below. ")
	b.WriteString("Keep every claim truthful to the source CV; reorder, reword, and trim to emphasize relevance. ")
	b.WriteString("Return only a complete LaTeX document.\n\n")

	fmt.Fprintf(&b, "Company: %s\nRole: %s\n", req.Company, req.Role)
	if req.Strategy != "" {
		fmt.Fprintf(&b, "Positioning strategy: %s\n", req.Strategy)
	}
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", req.JobDescription)
	}
	if brief != "" {
		fmt.Fprintf(&b, "\nCompany research:\n%s\n", brief)
	}
	fmt.Fprintf(&b, "\nSource CV:\n%s\n", req.CVSource)

	return b.String()
}

func coverLetterPrompt(req core.GenerationRequest, brief string) string {
	var b strings.Builder

	b.WriteString("Write a concise, specific cover letter for the application below. ")
	b.WriteString("Three to four short paragraphs, no filler, grounded in the CV. ")
	b.WriteString("Return only the letter body as plain text.\n\n")

	fmt.Fprintf(&b, "Company: %s\nRole: %s\n", req.Company, req.Role)
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", req.JobDescription)
	}
	if brief != "" {
		fmt.Fprintf(&b, "\nCompany research:\n%s\n", brief)
	}
	fmt.Fprintf(&b, "\nCandidate CV:\n%s\n", req.CVSource)

	return b.String()
}

func coldEmailPrompt(req core.GenerationRequest, brief string, contact core.Contact, contactSummary string) string {
	var b strings.Builder

	b.WriteString("Write a short cold outreach email (under 150 words) to the contact below about the role. ")
	b.WriteString("Lead with a specific, relevant hook, not a generic opener. ")
	b.WriteString("Return only the email: a subject line, then the body.\n\n")

	fmt.Fprintf(&b, "Company: %s\nRole: %s\n", req.Company, req.Role)
	if contact.Name != "" {
		fmt.Fprintf(&b, "Contact: %s", contact.Name)
		if contact.Title != "" {
			fmt.Fprintf(&b, " (%s)", contact.Title)
		}
		b.WriteString("\n")
	}
	if contactSummary != "" {
		fmt.Fprintf(&b, "\nAbout the contact:\n%s\n", contactSummary)
	}
	if brief != "" {
		fmt.Fprintf(&b, "\nCompany research:\n%s\n", brief)
	}
	fmt.Fprintf(&b, "\nCandidate CV:\n%s\n", req.CVSource)

	return b.String()
}

func changeSummaryPrompt(sourceCV, tailoredCV string) string {
	return fmt.Sprintf(
		"Summarize in a handful of bullet points what changed between the original CV and the "+
			"tailored version: what was emphasized, reordered, or cut. Plain text only.\n\n"+
			"Original:\n%s\n\nTailored:\n%s",
		sourceCV, tailoredCV)
}

func contactSummaryPrompt(company string, contact core.Contact) string {
	var b strings.Builder

	b.WriteString("Write two or three sentences on how to approach this person in a cold email: ")
	b.WriteString("likely priorities given their title, and a sensible tone. Plain text only.\n\n")

	fmt.Fprintf(&b, "Company: %s\n", company)
	if contact.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", contact.Name)
	}
	if contact.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", contact.Title)
	}
	if contact.LinkedIn != "" {
		fmt.Fprintf(&b, "LinkedIn: %s\n", contact.LinkedIn)
	}

	return b.String()
}

func researchPrompt(company, role, jobDescription string) string {
	var b strings.Builder

	b.WriteString("Produce a short research brief on the company below for a job applicant: ")
	b.WriteString("what it does, recent direction, and what the team hiring for this role likely cares about. ")
	b.WriteString("A few short paragraphs, plain text.\n\n")

	fmt.Fprintf(&b, "Company: %s\nRole: %s\n", company, role)
	if jobDescription != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", jobDescription)
	}

	return b.String()
}
