// Package demographics extracts demographic groups and cache tags from a
// subject, computes representation statistics, validates subjects and
// sanitizes free text before analysis.
package demographics

import (
	"strings"

	"github.com/pario-ai/fairlens/pkg/models"
)

// Group types.
const (
	TypeAge           = "age"
	TypeGender        = "gender"
	TypeEthnicity     = "ethnicity"
	TypeLanguage      = "primary_language"
	TypeSocioeconomic = "socioeconomic_status"
	TypeEducation     = "education"
	TypeRegion        = "region"
	TypeCultural      = "cultural_background"
)

// ParticipantTagPrefix starts every participant cohort tag.
const ParticipantTagPrefix = "participant:"

const unknownValue = "unknown"

// Groups returns one (type, value) pair per non-empty demographic field, in
// a fixed order.
func Groups(d models.Demographics) []models.Group {
	var out []models.Group
	add := func(typ, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, models.Group{Type: typ, Value: v})
		}
	}
	add(TypeAge, d.Age)
	add(TypeGender, d.Gender)
	add(TypeEthnicity, d.Ethnicity)
	add(TypeLanguage, d.PrimaryLanguage)
	add(TypeSocioeconomic, d.SocioeconomicStatus)
	add(TypeEducation, d.Education)
	add(TypeRegion, d.Region)
	for _, c := range d.CulturalBackground {
		add(TypeCultural, c)
	}
	return out
}

// Value returns the demographic value of the given group type, or "" if the
// type is unknown or multi-valued.
func Value(d models.Demographics, typ string) string {
	switch typ {
	case TypeAge:
		return d.Age
	case TypeGender:
		return d.Gender
	case TypeEthnicity:
		return d.Ethnicity
	case TypeLanguage:
		return d.PrimaryLanguage
	case TypeSocioeconomic:
		return d.SocioeconomicStatus
	case TypeEducation:
		return d.Education
	case TypeRegion:
		return d.Region
	}
	return ""
}

// NormalizeTagValue lower-cases v and replaces separators so it can be a tag
// component. Empty values become "unknown".
func NormalizeTagValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return unknownValue
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '\t':
			return '-'
		}
		return r
	}, v)
}

// ParticipantTag returns participant:{age}:{gender}:{ethnicity}.
func ParticipantTag(d models.Demographics) string {
	return ParticipantTagPrefix +
		NormalizeTagValue(d.Age) + ":" +
		NormalizeTagValue(d.Gender) + ":" +
		NormalizeTagValue(d.Ethnicity)
}
