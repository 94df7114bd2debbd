package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuality_Ordinal(t *testing.T) {
	assert.Equal(t, 4, QualityExcellent.Ordinal())
	assert.Equal(t, 3, QualityGood.Ordinal())
	assert.Equal(t, 2, QualityFair.Ordinal())
	assert.Equal(t, 1, QualityPoor.Ordinal())
	assert.Equal(t, 1, QualityUnknown.Ordinal())
}

func TestQualityFromOrdinal(t *testing.T) {
	assert.Equal(t, QualityExcellent, QualityFromOrdinal(4))
	assert.Equal(t, QualityExcellent, QualityFromOrdinal(3.5))
	assert.Equal(t, QualityGood, QualityFromOrdinal(3))
	assert.Equal(t, QualityGood, QualityFromOrdinal(2.5))
	assert.Equal(t, QualityFair, QualityFromOrdinal(2))
	assert.Equal(t, QualityPoor, QualityFromOrdinal(1))
	assert.Equal(t, QualityPoor, QualityFromOrdinal(0))
}

func TestParseQuality(t *testing.T) {
	assert.Equal(t, QualityGood, ParseQuality("good"))
	assert.Equal(t, QualityExcellent, ParseQuality("excellent"))
	assert.Equal(t, QualityUnknown, ParseQuality(""))
	assert.Equal(t, QualityUnknown, ParseQuality("stellar"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "very bullish", Classify(0.8))
	assert.Equal(t, "bullish", Classify(0.4))
	assert.Equal(t, "slightly bullish", Classify(0.2))
	assert.Equal(t, "neutral", Classify(0))
	assert.Equal(t, "slightly bearish", Classify(-0.2))
	assert.Equal(t, "bearish", Classify(-0.4))
	assert.Equal(t, "very bearish", Classify(-0.8))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 1.0, ClampScore(3.2))
	assert.Equal(t, -1.0, ClampScore(-7))
	assert.Equal(t, 0.25, ClampScore(0.25))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 1.0, ClampConfidence(1.8))
	assert.Equal(t, 0.0, ClampConfidence(-0.4))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}

func TestReport_Clone(t *testing.T) {
	original := NewReport([]Record{{
		IndicatorName: "Test Index",
		Value:         60,
		Confidence:    0.8,
		Metadata:      map[string]interface{}{"sample": 5},
	}}, 0.2, QualityGood)

	clone := original.Clone()
	require.NotNil(t, clone)
	require.Len(t, clone.Records, 1)

	// Mutating the clone must not reach the original
	clone.Records[0].Value = -1
	clone.Records[0].Metadata["sample"] = 99
	clone.CompositeScore = -1

	assert.Equal(t, 60.0, original.Records[0].Value)
	assert.Equal(t, 5, original.Records[0].Metadata["sample"])
	assert.Equal(t, 0.2, original.CompositeScore)

	var nilReport *Report
	assert.Nil(t, nilReport.Clone())
}

func TestNewFailureReport(t *testing.T) {
	report := NewFailureReport("upstream down")

	assert.False(t, report.Success)
	assert.Equal(t, "upstream down", report.ErrorMessage)
	assert.Equal(t, QualityUnknown, report.DataQuality)
	assert.NotNil(t, report.Records)
	assert.Empty(t, report.Records)
	assert.False(t, report.UpdateTime.IsZero())
}

func TestNewReportSnapshot(t *testing.T) {
	report := NewReport([]Record{
		{IndicatorName: "A", Value: 50},
		{IndicatorName: "B", Value: 60},
	}, 0.3, QualityGood)

	snap := NewReportSnapshot(report, []string{"feargreed", "news"})

	assert.NotEmpty(t, snap.ID)
	assert.True(t, snap.Success)
	assert.Equal(t, 0.3, snap.CompositeScore)
	assert.Equal(t, "good", snap.DataQuality)
	assert.Equal(t, uint32(2), snap.RecordCount)
	assert.Equal(t, uint32(2), snap.SourceCount)
	assert.Equal(t, []string{"feargreed", "news"}, snap.SuccessSources)
}
