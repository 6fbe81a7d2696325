package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompany_LegalSuffixesCollapse(t *testing.T) {
	want := Company("google")
	assert.Equal(t, "google", want)
	assert.Equal(t, want, Company("Google, Inc."))
	assert.Equal(t, want, Company("Google LLC"))
	assert.Equal(t, want, Company("  GOOGLE  "))
}

func TestCompany(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"gmbh", "Siemens GmbH", "siemens"},
		{"plc with comma", "Barclays, PLC", "barclays"},
		{"one suffix stripped", "Acme Co., Ltd.", "acme co"},
		{"only the trailing suffix", "Acme Company Limited", "acme company"},
		{"suffix inside name kept", "Cohere", "cohere"},
		{"suffix without separator kept", "Costco", "costco"},
		{"punctuation folded", "Johnson & Johnson", "johnson johnson"},
		{"hyphen folded", "Coca-Cola Company", "coca cola"},
		{"diacritics folded", "Nestlé S.A.", "nestle s a"},
		{"suffix only", "Inc", "inc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Company(tt.in))
		})
	}
}

func TestRole_AbbreviationAndSeasonFolding(t *testing.T) {
	assert.Equal(t, Role("Software Engineer Intern"), Role("SWE Intern Summer 2026"))
	assert.Equal(t, "software engineer intern", Role("SWE Intern Summer 2026"))
}

func TestRole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"sde", "SDE II", "software development engineer ii"},
		{"ml", "ML Engineer", "machine learning engineer"},
		{"internship folds", "Data Science Internship", "data science intern"},
		{"bare year", "Backend Engineer 2025", "backend engineer"},
		{"season year", "Fall 2025 Co-op", "co op"},
		{"abbreviation only as whole word", "Mlops Engineer", "mlops engineer"},
		{"ui ux", "UI/UX Designer", "user interface user experience designer"},
		{"non 20xx year kept", "Engineer 1999", "engineer 1999"},
		{"separators", "Software Engineer - Intern (2026)", "software engineer intern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Role(tt.in))
		})
	}
}

func TestIsUnknown(t *testing.T) {
	unknown := []string{
		"", "  ", "Unknown", "N/A", "na", "Not specified", "NONE", "null",
		"could not determine", "Not available",
		"Company name not in email content",
		"The role cannot be determined",
		"not provided in the message",
	}
	for _, v := range unknown {
		assert.True(t, IsUnknown(v), "IsUnknown(%q)", v)
	}

	known := []string{"Amazon", "Unknown Company", "Nationals", "Anthropic", "Noneaway Labs"}
	for _, v := range known {
		assert.False(t, IsUnknown(v), "IsUnknown(%q)", v)
	}
}
