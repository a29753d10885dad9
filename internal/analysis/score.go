package analysis

import (
	"math"
	"strings"
)

// PassThreshold is the normalized sub-score a regulation needs to pass.
const PassThreshold = 70

// Status values of a regulation verdict.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

type dimension struct {
	key    string
	weight int
	label  string
	gdpr   bool
	ccpa   bool
}

// dimensions is the weight table. The order fixes the order of missing sections.
var dimensions = []dimension{
	{key: "data_collection", weight: 15, label: "Data Collection Practices", gdpr: true, ccpa: true},
	{key: "processing_purpose", weight: 10, label: "Processing Purpose / Lawful Basis", gdpr: true},
	{key: "gdpr_rights", weight: 20, label: "GDPR Data Subject Rights", gdpr: true},
	{key: "ccpa_rights", weight: 20, label: "CCPA Consumer Rights / Opt-Out", ccpa: true},
	{key: "data_retention", weight: 10, label: "Data Retention Policy", gdpr: true},
	{key: "security_measures", weight: 10, label: "Security Measures", gdpr: true},
	{key: "transparency", weight: 10, label: "Transparency / Privacy Notice", gdpr: true, ccpa: true},
	{key: "third_party_sharing", weight: 5, label: "Third Party Sharing / Data Sale Disclosure", ccpa: true},
}

var synonyms = map[string]string{
	"data collection":              "data_collection",
	"data collection practices":    "data_collection",
	"personal data collected":      "data_collection",
	"categories of data collected": "data_collection",
	"categories of data":           "data_collection",

	"processing purpose":    "processing_purpose",
	"purpose of processing": "processing_purpose",
	"lawful basis":          "processing_purpose",
	"purpose limitation":    "processing_purpose",

	"gdpr rights":            "gdpr_rights",
	"user rights":            "gdpr_rights",
	"data subject rights":    "gdpr_rights",
	"right of access":        "gdpr_rights",
	"right to rectification": "gdpr_rights",
	"right to erasure":       "gdpr_rights",
	"right to portability":   "gdpr_rights",

	"ccpa rights":      "ccpa_rights",
	"consumer rights":  "ccpa_rights",
	"right to know":    "ccpa_rights",
	"right to delete":  "ccpa_rights",
	"right to opt out": "ccpa_rights",
	"ccpa opt-out":     "ccpa_rights",
	"opt-out":          "ccpa_rights",
	"opt out":          "ccpa_rights",

	"data retention":        "data_retention",
	"data retention policy": "data_retention",
	"retention period":      "data_retention",

	"security measures":  "security_measures",
	"security":           "security_measures",
	"data security":      "security_measures",
	"technical measures": "security_measures",

	"transparency":         "transparency",
	"privacy notice":       "transparency",
	"notice of collection": "transparency",
	"privacy policy":       "transparency",

	"third party sharing":  "third_party_sharing",
	"third-party sharing":  "third_party_sharing",
	"data sharing":         "third_party_sharing",
	"data sale disclosure": "third_party_sharing",
	"data sale":            "third_party_sharing",
}

// ScoreReport is the deterministic verdict for a set of detected sections.
type ScoreReport struct {
	GDPRStatus      string   `json:"gdpr_status"`
	CCPAStatus      string   `json:"ccpa_status"`
	Score           int      `json:"score"`
	GDPRPercent     int      `json:"gdpr_percent"`
	CCPAPercent     int      `json:"ccpa_percent"`
	MissingSections []string `json:"missing_sections"`
}

// Score maps detected section labels onto the weight table. Labels are
// matched case-insensitively after trimming; unknown labels earn nothing.
func Score(detected []string) ScoreReport {
	satisfied := make(map[string]bool, len(dimensions))
	for _, label := range detected {
		if key, ok := synonyms[strings.ToLower(strings.TrimSpace(label))]; ok {
			satisfied[key] = true
		}
	}

	var total, gdprEarned, gdprMax, ccpaEarned, ccpaMax int
	missing := []string{}
	for _, d := range dimensions {
		ok := satisfied[d.key]
		if ok {
			total += d.weight
		} else {
			missing = append(missing, d.label)
		}
		if d.gdpr {
			gdprMax += d.weight
			if ok {
				gdprEarned += d.weight
			}
		}
		if d.ccpa {
			ccpaMax += d.weight
			if ok {
				ccpaEarned += d.weight
			}
		}
	}

	gdprPct, ccpaPct := percent(gdprEarned, gdprMax), percent(ccpaEarned, ccpaMax)
	return ScoreReport{
		GDPRStatus:      verdict(gdprPct),
		CCPAStatus:      verdict(ccpaPct),
		Score:           total,
		GDPRPercent:     gdprPct,
		CCPAPercent:     ccpaPct,
		MissingSections: missing,
	}
}

func percent(earned, max int) int {
	if max == 0 {
		return 0
	}
	return int(math.Round(float64(earned) / float64(max) * 100))
}

func verdict(pct int) string {
	if pct >= PassThreshold {
		return StatusPass
	}
	return StatusFail
}
