package entity

import "encoding/json"

// Structured resume record produced by the parse stage. Field names follow
// the externally visible JSON contract.

// Name is the structured name of the individual.
type Name struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Full  string `json:"full"`
}

// Address is a structured physical address.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country,omitempty"`
}

// Contact is structured contact information.
type Contact struct {
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Address  *Address `json:"address,omitempty"`
	LinkedIn string   `json:"linkedin,omitempty"`
	Website  string   `json:"website,omitempty"`
}

// PersonalInfo groups all personal and contact information.
type PersonalInfo struct {
	Name    *Name    `json:"name,omitempty"`
	Contact *Contact `json:"contact,omitempty"`
}

// Summary is the model's analysis of the resume's summary section.
type Summary struct {
	Text          string `json:"text,omitempty"`
	CareerLevel   string `json:"careerLevel,omitempty"`   // e.g. "entry", "mid", "senior"
	IndustryFocus string `json:"industryFocus,omitempty"` // e.g. "technology", "finance"
}

// WorkExperience is one structured work experience entry.
type WorkExperience struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	Current      bool     `json:"current,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Description  string   `json:"description,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Education is one structured education entry.
type Education struct {
	Degree         string   `json:"degree"`
	Field          string   `json:"field,omitempty"`
	Institution    string   `json:"institution"`
	Location       string   `json:"location,omitempty"`
	GraduationDate string   `json:"graduation_date,omitempty"`
	GPA            float64  `json:"gpa,omitempty"`
	Honors         []string `json:"honors,omitempty"`
}

// TechnicalSkillItem is a specific category of technical skills.
type TechnicalSkillItem struct {
	Category string   `json:"category"`
	Items    []string `json:"items"`
}

// Language is a spoken language and proficiency level.
type Language struct {
	Language    string `json:"language"`
	Proficiency string `json:"proficiency,omitempty"`
}

// Skills collects all skill types.
type Skills struct {
	Technical []TechnicalSkillItem `json:"technical,omitempty"`
	Soft      []string             `json:"soft,omitempty"`
	Languages []Language           `json:"languages,omitempty"`
}

// Certification is one structured certification entry.
type Certification struct {
	Name         string `json:"name"`
	Issuer       string `json:"issuer,omitempty"`
	IssueDate    string `json:"issueDate,omitempty"`
	ExpiryDate   string `json:"expiryDate,omitempty"`
	CredentialID string `json:"credentialId,omitempty"`
}

// ParsedResume is the canonical structured record the parse stage produces.
type ParsedResume struct {
	PersonalInfo   *PersonalInfo    `json:"personalInfo,omitempty"`
	Summary        *Summary         `json:"summary,omitempty"`
	Experience     []WorkExperience `json:"experience,omitempty"`
	Education      []Education      `json:"education,omitempty"`
	Skills         *Skills          `json:"skills,omitempty"`
	Certifications []Certification  `json:"certifications,omitempty"`
}

// BiasFinding details a single potential bias finding.
type BiasFinding struct {
	Category   string `json:"category"`   // e.g. "Gender", "Age", "Ethnicity"
	Finding    string `json:"finding"`    // the text identified as potentially biased
	Suggestion string `json:"suggestion"` // mitigation suggestion
}

// BiasReport is the bias stage's output.
type BiasReport struct {
	BiasDetected bool          `json:"biasDetected"`
	Findings     []BiasFinding `json:"findings"`
}

// SalaryEstimate is the salary stage's output.
type SalaryEstimate struct {
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Currency string `json:"currency"`
	Comments string `json:"comments"`
}

// CareerProgression is the career stage's output.
type CareerProgression struct {
	SuggestedNextRoles []string `json:"suggestedNextRoles"`
	ImprovementAreas   []string `json:"improvementAreas"`
	Comments           string   `json:"comments"`
}

// AnonymizedResume is the anonymize stage's output: the parsed record with
// PII fields replaced by "[REDACTED]". Kept opaque because the redaction is
// performed by the model against the same schema as ParsedResume.
type AnonymizedResume = json.RawMessage
