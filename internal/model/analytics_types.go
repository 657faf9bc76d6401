package model

import "time"

const (
	MetricsRecommendation = "recommendation"
	MetricsAssessment     = "assessment"
)

// ConfusionMatrix 推荐/评估效果的混淆矩阵近似
type ConfusionMatrix struct {
	TruePositive  int `json:"truePositive"`
	FalsePositive int `json:"falsePositive"`
	FalseNegative int `json:"falseNegative"`
	TrueNegative  int `json:"trueNegative"`
}

// Precision 无定义时为 0
func (m ConfusionMatrix) Precision() float64 {
	return ratio(m.TruePositive, m.TruePositive+m.FalsePositive)
}

func (m ConfusionMatrix) Recall() float64 {
	return ratio(m.TruePositive, m.TruePositive+m.FalseNegative)
}

func (m ConfusionMatrix) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (m ConfusionMatrix) Accuracy() float64 {
	total := m.TruePositive + m.FalsePositive + m.FalseNegative + m.TrueNegative
	return ratio(m.TruePositive+m.TrueNegative, total)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// EffectivenessMetrics getEffectivenessMetrics 的返回
type EffectivenessMetrics struct {
	Type        string          `json:"type"`
	Timeframe   string          `json:"timeframe"`
	WindowStart *time.Time      `json:"windowStart,omitempty"`
	WindowEnd   time.Time       `json:"windowEnd"`
	Matrix      ConfusionMatrix `json:"matrix"`
	Pending     int             `json:"pending"`
	Precision   float64         `json:"precision"`
	Recall      float64         `json:"recall"`
	F1          float64         `json:"f1"`
	Accuracy    float64         `json:"accuracy"`
	Samples     int             `json:"samples"`
}

// WeightSuggestion 基于反馈的权重调整建议，需管理员确认后才写入
type WeightSuggestion struct {
	Timeframe         string  `json:"timeframe"`
	BasedOnVersion    int     `json:"basedOnVersion"`
	JoinedSamples     int     `json:"joinedSamples"`
	IgnoredSamples    int     `json:"ignoredSamples"`
	LanguageWeight    float64 `json:"languageWeight"`
	TopicWeight       float64 `json:"topicWeight"`
	DifficultyPenalty float64 `json:"difficultyPenalty"`
	Changed           bool    `json:"changed"`
	Reason            string  `json:"reason"`
}
