// Package cortex runs natural-language regression suites against a
// deployed semantic view and judges the results against declared
// expectations.
package cortex

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Question is one regression case: a natural-language question plus the
// expectations the response must satisfy. A question passes iff every
// given expectation holds.
type Question struct {
	Question               string   `yaml:"question" json:"question"`
	ExpectedTables         []string `yaml:"expected_tables,omitempty" json:"expected_tables,omitempty"`
	ExpectedSQLPatterns    []string `yaml:"expected_sql_patterns,omitempty" json:"expected_sql_patterns,omitempty"`
	ExpectedAnswerSnippet  string   `yaml:"expected_answer_snippet,omitempty" json:"expected_answer_snippet,omitempty"`
}

// QuestionSet is a named suite of questions.
type QuestionSet struct {
	Name      string     `yaml:"name,omitempty" json:"name,omitempty"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// LoadQuestionSet parses a question-set YAML document.
func LoadQuestionSet(payload []byte) (*QuestionSet, error) {
	var set QuestionSet
	if err := yaml.Unmarshal(payload, &set); err != nil {
		return nil, fmt.Errorf("failed to parse question set: %w", err)
	}
	if len(set.Questions) == 0 {
		return nil, fmt.Errorf("question set contains no questions")
	}
	for i, q := range set.Questions {
		if q.Question == "" {
			return nil, fmt.Errorf("question %d has no text", i)
		}
	}
	return &set, nil
}
