package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptState string

const (
	AttemptIssued    AttemptState = "issued"
	AttemptStarted   AttemptState = "started"
	AttemptSubmitted AttemptState = "submitted" // 仅存在于加锁的终结流程内部，不落库
	AttemptPassed    AttemptState = "passed"
	AttemptFailed    AttemptState = "failed"
	AttemptExpired   AttemptState = "expired"
	AttemptAbandoned AttemptState = "abandoned"
)

// IsTerminal 终态之后记录不可再变
func (s AttemptState) IsTerminal() bool {
	switch s {
	case AttemptPassed, AttemptFailed, AttemptExpired, AttemptAbandoned:
		return true
	}
	return false
}

// NonTerminalAttemptStates 用于条件更新
var NonTerminalAttemptStates = []AttemptState{AttemptIssued, AttemptStarted}

// ActiveAttemptKey 非终态尝试的唯一键，终态时置空
func ActiveAttemptKey(userID, projectID uint) string {
	return fmt.Sprintf("%d:%d", userID, projectID)
}

// swagger:model ChallengeAttempt
type ChallengeAttempt struct {
	BaseModel

	UserID          uint                                  `gorm:"index:idx_attempt_user_project;not null" json:"userId"`
	ProjectID       uint                                  `gorm:"index:idx_attempt_user_project;not null" json:"projectId"`
	ChallengeID     *uint                                 `gorm:"index" json:"challengeId,omitempty"`
	ChallengeOrigin ChallengeOrigin                       `gorm:"size:20" json:"challengeOrigin"`
	Challenge       datatypes.JSONType[ChallengeSnapshot] `json:"-"`
	State           AttemptState                          `gorm:"size:20;index;not null" json:"state"`
	ActiveKey       *string                               `gorm:"size:64;uniqueIndex" json:"-"`

	IssuedAt     time.Time  `json:"issuedAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	Deadline     *time.Time `gorm:"index" json:"deadline,omitempty"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	FinalizedAt  *time.Time `json:"finalizedAt,omitempty"`
	DraftCode    string     `gorm:"type:text" json:"-"`
	DraftSavedAt *time.Time `json:"draftSavedAt,omitempty"`

	SubmittedCode string     `gorm:"type:text" json:"-"`
	Score         int        `gorm:"default:0" json:"score"`
	PassedTests   int        `gorm:"default:0" json:"passedTests"`
	TotalTests    int        `gorm:"default:0" json:"totalTests"`
	Passed        bool       `gorm:"default:false" json:"passed"`
	SandboxFault  bool       `gorm:"default:false" json:"sandboxFault"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`

	RecommendationID *uint `gorm:"index" json:"recommendationId,omitempty"`
}

func (ChallengeAttempt) TableName() string {
	return "challenge_attempts"
}

// Snapshot 返回固化的题目
func (a *ChallengeAttempt) Snapshot() ChallengeSnapshot {
	return a.Challenge.Data()
}

// Lapsed 服务端计时：已开始且超过截止时间
func (a *ChallengeAttempt) Lapsed(now time.Time) bool {
	return a.State == AttemptStarted && a.Deadline != nil && now.After(*a.Deadline)
}

// AttemptView 返回给候选人的尝试信息
type AttemptView struct {
	Attempt   *ChallengeAttempt `json:"attempt"`
	Challenge PublicChallenge   `json:"challenge"`
	DraftCode string            `json:"draftCode,omitempty"`
}

const (
	ReasonOK                = "ok"
	ReasonAlreadyMember     = "already_member"
	ReasonProjectOwner      = "project_owner"
	ReasonNotRecruiting     = "project_not_recruiting"
	ReasonAttemptInProgress = "attempt_in_progress"
	ReasonCooldown          = "cooldown"
)

// Eligibility canAttempt 的返回
type Eligibility struct {
	CanAttempt      bool       `json:"canAttempt"`
	Reason          string     `json:"reason"`
	NextAttemptAt   *time.Time `json:"nextAttemptAt,omitempty"`
	ActiveAttemptID *uint      `json:"activeAttemptId,omitempty"`
}

// IssueResult Resumed 为 true 表示返回的是已有的进行中尝试
type IssueResult struct {
	AttemptID uint              `json:"attemptId"`
	Attempt   *ChallengeAttempt `json:"attempt"`
	Challenge PublicChallenge   `json:"challenge"`
	Resumed   bool              `json:"resumed"`
}

// SubmitResult submitAttempt 的返回
type SubmitResult struct {
	AttemptID     uint         `json:"attemptId"`
	Status        AttemptState `json:"status"`
	Score         int          `json:"score"`
	PassedTests   int          `json:"passedTests"`
	TotalTests    int          `json:"totalTests"`
	Passed        bool         `json:"passed"`
	ProjectJoined bool         `json:"projectJoined"`
	SandboxFault  bool         `json:"sandboxFault,omitempty"`
	NextAttemptAt *time.Time   `json:"nextAttemptAt,omitempty"`
}

// AdmissionResult 准入处理结果
type AdmissionResult struct {
	AttemptID     uint       `json:"attemptId"`
	Passed        bool       `json:"passed"`
	ProjectJoined bool       `json:"projectJoined"`
	NewMember     bool       `json:"newMember"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
}
