package model

import (
	"gorm.io/datatypes"
)

type ChallengeOrigin string

const (
	ChallengePersistent ChallengeOrigin = "persistent"
	ChallengeEphemeral  ChallengeOrigin = "ephemeral"
)

const (
	CompareExact = "exact"
	CompareTrim  = "trim"
	CompareFloat = "float"
)

const DefaultPassThreshold = 70

// TestCase 单个测试用例，按列表顺序执行
type TestCase struct {
	Input          string  `json:"input" yaml:"input"`
	ExpectedOutput string  `json:"expectedOutput" yaml:"expected_output"`
	Weight         int     `json:"weight" yaml:"weight"`
	Comparison     string  `json:"comparison,omitempty" yaml:"comparison"`
	Tolerance      float64 `json:"tolerance,omitempty" yaml:"tolerance"`
	Hidden         bool    `json:"hidden,omitempty" yaml:"hidden"`
}

// EffectiveWeight 权重缺省为 1
func (t TestCase) EffectiveWeight() int {
	if t.Weight <= 0 {
		return 1
	}
	return t.Weight
}

// swagger:model Challenge
type Challenge struct {
	BaseModel
	ProjectID        *uint                         `gorm:"index" json:"projectId"`
	AuthorID         uint                          `gorm:"index" json:"authorId"`
	Title            string                        `gorm:"size:255;not null" json:"title"`
	Language         string                        `gorm:"size:50;not null" json:"language"`
	Difficulty       string                        `gorm:"size:20;default:'intermediate'" json:"difficulty"`
	Statement        string                        `gorm:"type:text" json:"statement"`
	StarterCode      string                        `gorm:"type:text" json:"starterCode"`
	TestCases        datatypes.JSONSlice[TestCase] `json:"testCases"`
	TimeLimitMinutes *int                          `json:"timeLimitMinutes,omitempty"` // nil 表示不限时
	PassThreshold    *int                          `json:"passThreshold,omitempty"`    // nil 使用算法配置默认值
}

func (Challenge) TableName() string {
	return "challenges"
}

// ChallengeSnapshot 发放时固化到尝试记录上的题目；持久题和临时题共用同一结构，由 Origin 区分
type ChallengeSnapshot struct {
	Origin           ChallengeOrigin `json:"origin"`
	ChallengeID      *uint           `json:"challengeId,omitempty"`
	Key              string          `json:"key"`
	Title            string          `json:"title"`
	Language         string          `json:"language"`
	Difficulty       string          `json:"difficulty"`
	Statement        string          `json:"statement"`
	StarterCode      string          `json:"starterCode"`
	TestCases        []TestCase      `json:"testCases"`
	TimeLimitMinutes *int            `json:"timeLimitMinutes,omitempty"`
	PassThreshold    int             `json:"passThreshold"`
}

func (s ChallengeSnapshot) IsEphemeral() bool {
	return s.Origin == ChallengeEphemeral
}

// PublicTestCase 对候选人可见的用例信息，不含期望输出
type PublicTestCase struct {
	Index  int    `json:"index"`
	Weight int    `json:"weight"`
	Input  string `json:"input,omitempty"`
	Hidden bool   `json:"hidden"`
}

// PublicChallenge 返回给候选人的题目视图
type PublicChallenge struct {
	Key              string           `json:"key"`
	Origin           ChallengeOrigin  `json:"origin"`
	Title            string           `json:"title"`
	Language         string           `json:"language"`
	Difficulty       string           `json:"difficulty"`
	Statement        string           `json:"statement"`
	StarterCode      string           `json:"starterCode"`
	TimeLimitMinutes *int             `json:"timeLimitMinutes,omitempty"`
	PassThreshold    int              `json:"passThreshold"`
	Tests            []PublicTestCase `json:"tests"`
}

func (s ChallengeSnapshot) Public() PublicChallenge {
	tests := make([]PublicTestCase, 0, len(s.TestCases))
	for i, tc := range s.TestCases {
		pt := PublicTestCase{Index: i, Weight: tc.EffectiveWeight(), Hidden: tc.Hidden}
		if !tc.Hidden {
			pt.Input = tc.Input
		}
		tests = append(tests, pt)
	}
	return PublicChallenge{
		Key:              s.Key,
		Origin:           s.Origin,
		Title:            s.Title,
		Language:         s.Language,
		Difficulty:       s.Difficulty,
		Statement:        s.Statement,
		StarterCode:      s.StarterCode,
		TimeLimitMinutes: s.TimeLimitMinutes,
		PassThreshold:    s.PassThreshold,
		Tests:            tests,
	}
}
