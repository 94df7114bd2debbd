package sentiment

import "time"

// Quality grades how complete and trustworthy a report's records are
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityUnknown   Quality = "unknown"
)

// Ordinal maps a quality grade onto the 1..4 scale used for averaging.
// Unknown counts as 1 so unreported quality drags a roll-up down rather
// than inflating it.
func (q Quality) Ordinal() int {
	switch q {
	case QualityExcellent:
		return 4
	case QualityGood:
		return 3
	case QualityFair:
		return 2
	default:
		return 1
	}
}

// QualityFromOrdinal converts an averaged ordinal back to a grade
func QualityFromOrdinal(avg float64) Quality {
	switch {
	case avg >= 3.5:
		return QualityExcellent
	case avg >= 2.5:
		return QualityGood
	case avg >= 1.5:
		return QualityFair
	default:
		return QualityPoor
	}
}

// ParseQuality normalizes a config string to a known grade
func ParseQuality(s string) Quality {
	switch Quality(s) {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return Quality(s)
	default:
		return QualityUnknown
	}
}

// Record is a single indicator reading from one source
type Record struct {
	IndicatorName string                 `json:"indicator_name"`
	Value         float64                `json:"value"`
	Status        string                 `json:"status"`
	Change        float64                `json:"change"` // delta vs previous reading, source defined
	Signal        string                 `json:"signal"`
	Suggestion    string                 `json:"suggestion"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	Confidence    float64                `json:"confidence"` // 0 to 1
	Color         string                 `json:"color"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Report is the outcome of one fetch cycle, from a single plugin or
// aggregated across all of them. A failed fetch still yields a report
// with Success=false; errors never travel as errors past this type.
type Report struct {
	Success        bool      `json:"success"`
	Records        []Record  `json:"records"`
	CompositeScore float64   `json:"composite_score"` // -1 to 1
	ErrorMessage   string    `json:"error_message,omitempty"`
	DataQuality    Quality   `json:"data_quality"`
	UpdateTime     time.Time `json:"update_time"`
	CacheUsed      bool      `json:"cache_used"`
}

// NewReport builds a successful report
func NewReport(records []Record, score float64, quality Quality) *Report {
	return &Report{
		Success:        true,
		Records:        records,
		CompositeScore: ClampScore(score),
		DataQuality:    quality,
		UpdateTime:     time.Now(),
	}
}

// NewFailureReport builds a failed report carrying only the error message
func NewFailureReport(msg string) *Report {
	return &Report{
		Success:      false,
		Records:      []Record{},
		ErrorMessage: msg,
		DataQuality:  QualityUnknown,
		UpdateTime:   time.Now(),
	}
}

// Clone returns a deep copy safe to hand to callers while the original
// stays cached
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Records != nil {
		cp.Records = make([]Record, len(r.Records))
		copy(cp.Records, r.Records)
		for i := range cp.Records {
			cp.Records[i].Metadata = cloneMetadata(cp.Records[i].Metadata)
		}
	}
	return &cp
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// ClampScore bounds a composite score to [-1, 1]
func ClampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ClampConfidence bounds a record confidence to [0, 1]
func ClampConfidence(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// Classify maps a composite score to a human readable label
func Classify(score float64) string {
	switch {
	case score >= 0.6:
		return "very bullish"
	case score >= 0.3:
		return "bullish"
	case score >= 0.1:
		return "slightly bullish"
	case score >= -0.1:
		return "neutral"
	case score >= -0.3:
		return "slightly bearish"
	case score >= -0.6:
		return "bearish"
	default:
		return "very bearish"
	}
}

// ScoreColor maps a composite score to a presentation color hint
func ScoreColor(score float64) string {
	switch {
	case score >= 0.3:
		return "green"
	case score >= 0.1:
		return "light_green"
	case score > -0.1:
		return "gray"
	case score > -0.3:
		return "light_red"
	default:
		return "red"
	}
}
