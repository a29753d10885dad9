package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_PartialCoverage(t *testing.T) {
	report := Score([]string{"data collection", "gdpr rights", "security"})

	assert.Equal(t, 45, report.Score)
	assert.Equal(t, 60, report.GDPRPercent)
	assert.Equal(t, 30, report.CCPAPercent)
	assert.Equal(t, StatusFail, report.GDPRStatus)
	assert.Equal(t, StatusFail, report.CCPAStatus)
	assert.Equal(t, []string{
		"Processing Purpose / Lawful Basis",
		"CCPA Consumer Rights / Opt-Out",
		"Data Retention Policy",
		"Transparency / Privacy Notice",
		"Third Party Sharing / Data Sale Disclosure",
	}, report.MissingSections)
}

func TestScore_FullCoverage(t *testing.T) {
	report := Score([]string{
		"Data Collection", "lawful basis", "Right to Erasure", "opt-out",
		"retention period", "data security", "Privacy Notice", "third party sharing",
	})

	assert.Equal(t, 100, report.Score)
	assert.Equal(t, StatusPass, report.GDPRStatus)
	assert.Equal(t, StatusPass, report.CCPAStatus)
	assert.NotNil(t, report.MissingSections)
	assert.Empty(t, report.MissingSections)
}

func TestScore_EmptyAndUnknownLabels(t *testing.T) {
	for _, detected := range [][]string{nil, {}, {"cookies", "  "}} {
		report := Score(detected)
		assert.Equal(t, 0, report.Score)
		assert.Equal(t, StatusFail, report.GDPRStatus)
		assert.Len(t, report.MissingSections, len(dimensions))
	}
}

func TestScore_IsIdempotent(t *testing.T) {
	detected := []string{"security", "SECURITY", " security ", "privacy policy"}
	first := Score(detected)
	assert.Equal(t, first, Score(detected))
	assert.Equal(t, 20, first.Score)
}

func TestScore_ThresholdIsInclusive(t *testing.T) {
	// 35 of 50 CCPA points.
	report := Score([]string{"data collection", "consumer rights"})
	assert.Equal(t, PassThreshold, report.CCPAPercent)
	assert.Equal(t, StatusPass, report.CCPAStatus)
	assert.Equal(t, StatusFail, report.GDPRStatus)
}
