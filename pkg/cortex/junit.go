package cortex

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// JUnit XML report shape, for CI consumption.

type junitTestSuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// JUnitXML renders a regression run as a JUnit report.
func JUnitXML(result *RunResult) ([]byte, error) {
	suite := junitTestSuite{
		Name:     "Semantic View Regression",
		Tests:    result.TotalQuestions,
		Failures: result.Failed,
		Time:     fmt.Sprintf("%.3f", result.TotalLatencyMS/1000),
	}

	for i, qr := range result.Results {
		name := qr.Question
		if len(name) > 50 {
			name = name[:50] + "..."
		}
		tc := junitTestCase{
			Name:      fmt.Sprintf("Question %d: %s", i+1, name),
			ClassName: result.ViewFQN,
			Time:      fmt.Sprintf("%.3f", qr.LatencyMS/1000),
		}
		if !qr.Passed {
			body := fmt.Sprintf("Question: %s\n", qr.Question)
			if qr.SQL != "" {
				body += fmt.Sprintf("SQL: %s\n", qr.SQL)
			}
			if qr.Answer != "" {
				body += fmt.Sprintf("Answer: %s\n", qr.Answer)
			}
			tc.Failure = &junitFailure{
				Message: qr.FailureReason,
				Body:    body,
			}
		}
		suite.Cases = append(suite.Cases, tc)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return nil, fmt.Errorf("failed to encode junit report: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
