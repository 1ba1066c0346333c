package ingestion

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sarahrhemadayal/baseline/internal/memory"
)

// Sections is one user's batch of extracted profile and conversation data.
// Every field is optional.
type Sections struct {
	Profile         *Profile       `json:"profile,omitempty"`
	SpeechPattern   *SpeechPattern `json:"speechPattern,omitempty"`
	Summary         *Summary       `json:"summary,omitempty"`
	ExtractedSkills []string       `json:"extractedSkills,omitempty"`
	RawMessages     []Message      `json:"rawMessages,omitempty"`
}

// Profile is the structured resume extracted from a conversation.
type Profile struct {
	Education      []Education      `json:"education,omitempty"`
	WorkExperience []WorkExperience `json:"workExperience,omitempty"`
	Projects       []Project        `json:"projects,omitempty"`
	Skills         []string         `json:"skills,omitempty"`
	Leadership     []Leadership     `json:"leadership,omitempty"`
}

type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Period      string `json:"period"`
	Details     string `json:"details,omitempty"`
}

type WorkExperience struct {
	Company string   `json:"company"`
	Role    string   `json:"role"`
	Period  string   `json:"period"`
	Details []string `json:"details,omitempty"`
}

type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies,omitempty"`
}

type Leadership struct {
	Organization string   `json:"organization"`
	Role         string   `json:"role"`
	Period       string   `json:"period"`
	Details      []string `json:"details,omitempty"`
}

// SpeechPattern describes how the user writes.
type SpeechPattern struct {
	Tone              string   `json:"tone,omitempty"`
	Vocabulary        []string `json:"vocabulary,omitempty"`
	SentenceStructure string   `json:"sentenceStructure,omitempty"`
	CommonPhrases     []string `json:"commonPhrases,omitempty"`
	FormalityLevel    string   `json:"formalityLevel,omitempty"`
	PersonalityTraits []string `json:"personalityTraits,omitempty"`
}

func (s *SpeechPattern) empty() bool {
	return s == nil || (s.Tone == "" && s.SentenceStructure == "" && s.FormalityLevel == "" &&
		len(s.Vocabulary) == 0 && len(s.CommonPhrases) == 0 && len(s.PersonalityTraits) == 0)
}

// Summary is the conversation digest.
type Summary struct {
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"keyInsights,omitempty"`
}

// Message is one raw chat message.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Document is one record to embed: the synthesized text and the payload data.
type Document struct {
	// Section locates the source entry, e.g. "profile.projects[2]".
	Section string
	Type    string
	Text    string
	Data    map[string]any
}

// Synthesize turns sections into documents, one per non-empty entry, and
// reports how many entries it skipped. Only user messages longer than
// minMessageLength runes become documents.
func Synthesize(s Sections, minMessageLength int, now time.Time) (docs []Document, skipped int) {
	add := func(section, typ, text string, data map[string]any) {
		docs = append(docs, Document{Section: section, Type: typ, Text: text, Data: data})
	}

	if sp := s.SpeechPattern; !sp.empty() {
		add("speechPattern", memory.TypeSpeechPattern, speechPatternText(sp), map[string]any{
			"tone":              sp.Tone,
			"vocabulary":        sp.Vocabulary,
			"sentenceStructure": sp.SentenceStructure,
			"commonPhrases":     sp.CommonPhrases,
			"formalityLevel":    sp.FormalityLevel,
			"personalityTraits": sp.PersonalityTraits,
		})
	}

	if p := s.Profile; p != nil {
		for i, e := range p.Education {
			if blank(e.Institution, e.Degree) {
				skipped++
				continue
			}
			text := fmt.Sprintf("Education: %s, %s, %s", e.Institution, e.Degree, e.Period)
			if e.Details != "" {
				text += ", " + e.Details
			}
			add(fmt.Sprintf("profile.education[%d]", i), string(memory.ItemEducation), text, map[string]any{
				"institution": e.Institution,
				"degree":      e.Degree,
				"period":      e.Period,
				"details":     e.Details,
			})
		}
		for i, w := range p.WorkExperience {
			if blank(w.Company, w.Role) {
				skipped++
				continue
			}
			add(fmt.Sprintf("profile.workExperience[%d]", i), string(memory.ItemWorkExperience),
				fmt.Sprintf("Work Experience: %s, %s, %s. %s", w.Company, w.Role, w.Period, strings.Join(w.Details, ". ")),
				map[string]any{
					"company": w.Company,
					"role":    w.Role,
					"period":  w.Period,
					"details": w.Details,
				})
		}
		for i, pr := range p.Projects {
			if blank(pr.Name, pr.Description) {
				skipped++
				continue
			}
			add(fmt.Sprintf("profile.projects[%d]", i), string(memory.ItemProject),
				fmt.Sprintf("Project: %s. %s. Technologies: %s", pr.Name, pr.Description, strings.Join(pr.Technologies, ", ")),
				map[string]any{
					"name":         pr.Name,
					"description":  pr.Description,
					"technologies": pr.Technologies,
				})
		}
		for i, l := range p.Leadership {
			if blank(l.Organization, l.Role) {
				skipped++
				continue
			}
			text := fmt.Sprintf("Leadership: %s, %s, %s", l.Organization, l.Role, l.Period)
			if len(l.Details) > 0 {
				text += ". " + strings.Join(l.Details, ". ")
			}
			add(fmt.Sprintf("profile.leadership[%d]", i), string(memory.ItemLeadership), text, map[string]any{
				"organization": l.Organization,
				"role":         l.Role,
				"period":       l.Period,
				"details":      l.Details,
			})
		}
		if skills := nonEmpty(p.Skills); len(skills) > 0 {
			add("profile.skills", memory.TypeSkills, "Skills: "+strings.Join(skills, ", "),
				map[string]any{"skills": skills})
		}
	}

	if skills := nonEmpty(s.ExtractedSkills); len(skills) > 0 {
		add("extractedSkills", memory.TypeExtractedSkills, "Extracted Skills from Chat: "+strings.Join(skills, ", "),
			map[string]any{"skills": skills})
	}

	if sum := s.Summary; sum != nil && strings.TrimSpace(sum.Summary) != "" {
		add("summary", memory.TypeConversationSummary, "Conversation Summary: "+sum.Summary,
			map[string]any{"summary": sum.Summary, "keyInsights": sum.KeyInsights})
	}

	for i, m := range s.RawMessages {
		if m.Role != "user" || utf8.RuneCountInString(strings.TrimSpace(m.Content)) <= minMessageLength {
			skipped++
			continue
		}
		ts := m.Timestamp
		if ts == "" {
			ts = now.UTC().Format(time.RFC3339)
		}
		add(fmt.Sprintf("rawMessages[%d]", i), memory.TypeUserMessage, m.Content,
			map[string]any{"content": m.Content, "timestamp": ts})
	}
	return docs, skipped
}

func speechPatternText(sp *SpeechPattern) string {
	var parts []string
	if sp.Tone != "" {
		parts = append(parts, "tone "+sp.Tone)
	}
	if sp.FormalityLevel != "" {
		parts = append(parts, "formality "+sp.FormalityLevel)
	}
	if len(sp.Vocabulary) > 0 {
		parts = append(parts, "vocabulary "+strings.Join(sp.Vocabulary, ", "))
	}
	if sp.SentenceStructure != "" {
		parts = append(parts, "sentence structure "+sp.SentenceStructure)
	}
	if len(sp.CommonPhrases) > 0 {
		parts = append(parts, "common phrases "+strings.Join(sp.CommonPhrases, ", "))
	}
	if len(sp.PersonalityTraits) > 0 {
		parts = append(parts, "traits "+strings.Join(sp.PersonalityTraits, ", "))
	}
	return "Speech Pattern: " + strings.Join(parts, ", ")
}

// blank reports whether every field is empty after trimming.
func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
