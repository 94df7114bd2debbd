package kafka

// Topic definitions for Kafka event streaming
const (
	// Sentiment events
	TopicSentimentReports = "sentiment.reports"
	TopicSourceFailures   = "sentiment.source_failures"
)
