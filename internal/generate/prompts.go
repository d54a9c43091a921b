package generate

import (
	"fmt"
	"strings"
)

const summarySystemPrompt = `Given a candidate's information about their skills and qualifications, generate a resume summary fitting their bio.
Make it concise, professional, and relevant.`

const workExperienceSystemPrompt = `Given a candidate's work experience description, generate a job title, description, start and end dates, and the company the candidate worked at.
Keep it relevant to the description, concise, clear and professional. Use only the information provided; do not fill in gaps.

Job title: [job title]
Company: [company name]
Start date: [format: YYYY-MM-DD] (only if provided)
End date: [format: YYYY-MM-DD] (only if provided)
Description: [an optimized description with bullet points]`

func orNA(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func summaryUserPrompt(in SummaryInput) string {
	var b strings.Builder
	b.WriteString("Please generate a high quality, professional resume summary from this data:\n\n")
	fmt.Fprintf(&b, "Job Title: %s\n\n", orNA(in.JobTitle, "N/A"))

	b.WriteString("Work Experience:\n")
	for _, exp := range in.WorkExperience {
		fmt.Fprintf(&b, "Position: %s at %s from %s to %s\n",
			orNA(exp.Position, "N/A"), orNA(exp.Company, "N/A"),
			orNA(exp.StartDate, "N/A"), orNA(exp.EndDate, "Present"))
		fmt.Fprintf(&b, "Description: %s\n\n", orNA(exp.Description, "N/A"))
	}

	b.WriteString("Education:\n")
	for _, edu := range in.Education {
		fmt.Fprintf(&b, "Degree: %s at %s from %s to %s\n\n",
			orNA(edu.Degree, "N/A"), orNA(edu.School, "N/A"),
			orNA(edu.StartDate, "N/A"), orNA(edu.EndDate, "N/A"))
	}

	fmt.Fprintf(&b, "Skills: %s\n", orNA(strings.Join(in.Skills, ", "), "N/A"))
	return b.String()
}
