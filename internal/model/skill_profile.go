package model

type Proficiency string

const (
	ProficiencyBeginner     Proficiency = "beginner"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

// Level 映射到 1..4
func (p Proficiency) Level() int {
	switch p {
	case ProficiencyBeginner:
		return 1
	case ProficiencyIntermediate:
		return 2
	case ProficiencyAdvanced:
		return 3
	case ProficiencyExpert:
		return 4
	}
	return 0
}

// swagger:model UserLanguage
type UserLanguage struct {
	BaseModel
	UserID      uint        `gorm:"uniqueIndex:idx_user_language;not null" json:"userId"`
	Language    string      `gorm:"uniqueIndex:idx_user_language;size:50;not null" json:"language"`
	Proficiency Proficiency `gorm:"size:20;default:'beginner'" json:"proficiency"`
	Position    int         `gorm:"default:0" json:"position"`
}

func (UserLanguage) TableName() string {
	return "user_languages"
}

// swagger:model UserTopic
type UserTopic struct {
	BaseModel
	UserID   uint   `gorm:"uniqueIndex:idx_user_topic;not null" json:"userId"`
	Topic    string `gorm:"uniqueIndex:idx_user_topic;size:80;not null" json:"topic"`
	Interest int    `gorm:"default:3" json:"interest"` // 1-5
}

func (UserTopic) TableName() string {
	return "user_topics"
}

// SkillProfile 用户技能画像（只读聚合）
type SkillProfile struct {
	UserID    uint           `json:"userId"`
	Languages []UserLanguage `json:"languages"`
	Topics    []UserTopic    `json:"topics"`
}

// ExperienceLevel 按语言熟练度均值折算到项目难度刻度 1..3
func (p *SkillProfile) ExperienceLevel() int {
	if len(p.Languages) == 0 {
		return 1
	}
	sum := 0
	for _, l := range p.Languages {
		lv := l.Proficiency.Level()
		if lv == 0 {
			lv = 1
		}
		sum += lv
	}
	avg := float64(sum) / float64(len(p.Languages))
	switch {
	case avg < 1.75:
		return 1
	case avg < 2.75:
		return 2
	default:
		return 3
	}
}
