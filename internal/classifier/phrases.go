package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/kursadbilgin/promocheck/internal/domain"
	"github.com/titanous/json5"
)

// PhraseRule maps any of its phrases found in a page body to a verdict.
type PhraseRule struct {
	Name    string            `json:"name"`
	Status  domain.CodeStatus `json:"status"`
	Message string            `json:"message"`
	Phrases []string          `json:"phrases"`
}

//go:embed phrases.json5
var defaultPhrasesFile []byte

var defaultPhraseTable []PhraseRule

func init() {
	rules, err := ParsePhraseTable(defaultPhrasesFile)
	if err != nil {
		panic(err)
	}
	defaultPhraseTable = rules
}

// DefaultPhraseTable returns a copy of the built-in table.
func DefaultPhraseTable() []PhraseRule {
	return cloneRules(defaultPhraseTable)
}

// LoadPhraseTable reads a JSON5 phrase table from path.
func LoadPhraseTable(path string) ([]PhraseRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase table: %w", err)
	}

	rules, err := ParsePhraseTable(data)
	if err != nil {
		return nil, fmt.Errorf("phrase table %s: %w", path, err)
	}
	return rules, nil
}

func ParsePhraseTable(data []byte) ([]PhraseRule, error) {
	var rules []PhraseRule
	if err := json5.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse phrase table: %w", err)
	}
	return normalizeRules(rules)
}

func normalizeRules(rules []PhraseRule) ([]PhraseRule, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: phrase table is empty", domain.ErrValidation)
	}

	out := make([]PhraseRule, 0, len(rules))
	for i, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		if !rule.Status.IsFinal() {
			return nil, fmt.Errorf("%w: rule %s: status must be valid or invalid, got %q", domain.ErrValidation, name, rule.Status)
		}
		message := strings.TrimSpace(rule.Message)
		if message == "" {
			return nil, fmt.Errorf("%w: rule %s: message is required", domain.ErrValidation, name)
		}

		phrases := make([]string, 0, len(rule.Phrases))
		for _, phrase := range rule.Phrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase != "" {
				phrases = append(phrases, phrase)
			}
		}
		if len(phrases) == 0 {
			return nil, fmt.Errorf("%w: rule %s: at least one phrase is required", domain.ErrValidation, name)
		}

		out = append(out, PhraseRule{
			Name:    name,
			Status:  rule.Status,
			Message: message,
			Phrases: phrases,
		})
	}

	return out, nil
}

func cloneRules(rules []PhraseRule) []PhraseRule {
	out := make([]PhraseRule, len(rules))
	for i, rule := range rules {
		rule.Phrases = append([]string(nil), rule.Phrases...)
		out[i] = rule
	}
	return out
}
