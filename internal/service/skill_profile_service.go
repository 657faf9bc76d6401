package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
)

type SkillProfileService struct {
	ProfileRepo *repository.SkillProfileRepository
	ProjectRepo *repository.ProjectRepository
}

func NewSkillProfileService(profileRepo *repository.SkillProfileRepository, projectRepo *repository.ProjectRepository) *SkillProfileService {
	return &SkillProfileService{ProfileRepo: profileRepo, ProjectRepo: projectRepo}
}

type LanguageInput struct {
	Name        string            `json:"name" binding:"required"`
	Proficiency model.Proficiency `json:"proficiency"`
}

type TopicInput struct {
	Name     string `json:"name" binding:"required"`
	Interest int    `json:"interest"`
}

type UpdateSkillProfileRequest struct {
	Languages []LanguageInput `json:"languages"`
	Topics    []TopicInput    `json:"topics"`
}

func (s *SkillProfileService) GetProfile(userID uint) (*model.SkillProfile, error) {
	return s.ProfileRepo.GetProfile(userID)
}

// UpdateSkillProfile 规范化后整体替换；任何无法识别的名字都会使整个请求失败
func (s *SkillProfileService) UpdateSkillProfile(userID uint, req UpdateSkillProfileRequest) (*model.SkillProfile, error) {
	var unknown []string
	languages := make([]model.UserLanguage, 0, len(req.Languages))
	seenLang := make(map[string]bool)
	for _, in := range req.Languages {
		canonical, ok := NormalizeLanguage(in.Name)
		if !ok {
			unknown = append(unknown, in.Name)
			continue
		}
		if seenLang[canonical] {
			continue
		}
		seenLang[canonical] = true

		proficiency := in.Proficiency
		if proficiency == "" {
			proficiency = model.ProficiencyBeginner
		}
		if proficiency.Level() == 0 {
			return nil, util.NewValidationError("languages", "invalid proficiency %q for %s", in.Proficiency, in.Name)
		}
		languages = append(languages, model.UserLanguage{
			Language:    canonical,
			Proficiency: proficiency,
			Position:    len(languages),
		})
	}
	if len(unknown) > 0 {
		return nil, util.NewValidationError("languages", "unrecognized languages: %s", strings.Join(unknown, ", "))
	}

	topics, err := normalizeTopics(req.Topics)
	if err != nil {
		return nil, err
	}

	if err := s.ProfileRepo.ReplaceProfile(userID, languages, topics); err != nil {
		return nil, err
	}
	logger.Log.Info("skill profile updated",
		zap.Uint("userId", userID),
		zap.Int("languages", len(languages)),
		zap.Int("topics", len(topics)),
	)
	return s.ProfileRepo.GetProfile(userID)
}

func normalizeTopics(in []TopicInput) ([]model.UserTopic, error) {
	var unknown []string
	topics := make([]model.UserTopic, 0, len(in))
	seen := make(map[string]bool)
	for _, t := range in {
		canonical, ok := NormalizeTopic(t.Name)
		if !ok {
			unknown = append(unknown, t.Name)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true

		interest := t.Interest
		if interest == 0 {
			interest = 3
		}
		if interest < 1 || interest > 5 {
			return nil, util.NewValidationError("topics", "interest for %s must be between 1 and 5", t.Name)
		}
		topics = append(topics, model.UserTopic{Topic: canonical, Interest: interest})
	}
	if len(unknown) > 0 {
		return nil, util.NewValidationError("topics", "unrecognized topics: %s", strings.Join(unknown, ", "))
	}
	return topics, nil
}

type RequirementInput struct {
	Name      string `json:"name" binding:"required"`
	IsPrimary bool   `json:"isPrimary"`
}

type UpdateProjectRequirementsRequest struct {
	Difficulty string             `json:"difficulty"`
	Languages  []RequirementInput `json:"languages"`
	Topics     []RequirementInput `json:"topics"`
}

// UpdateProjectRequirements 仅项目 owner 可修改；语言、主题各自最多一个 primary
func (s *SkillProfileService) UpdateProjectRequirements(ownerID, projectID uint, req UpdateProjectRequirementsRequest) (*model.Project, error) {
	project, err := s.ProjectRepo.FindByID(projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != ownerID {
		return nil, util.ErrPermissionDenied
	}

	switch req.Difficulty {
	case "", model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced:
	default:
		return nil, util.NewValidationError("difficulty", "unknown difficulty %q", req.Difficulty)
	}

	var unknown []string
	languages := make([]model.ProjectLanguage, 0, len(req.Languages))
	seen := make(map[string]bool)
	primaries := 0
	for _, in := range req.Languages {
		canonical, ok := NormalizeLanguage(in.Name)
		if !ok {
			unknown = append(unknown, in.Name)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		if in.IsPrimary {
			primaries++
		}
		languages = append(languages, model.ProjectLanguage{Language: canonical, IsPrimary: in.IsPrimary})
	}
	if len(unknown) > 0 {
		return nil, util.NewValidationError("languages", "unrecognized languages: %s", strings.Join(unknown, ", "))
	}
	if primaries > 1 {
		return nil, util.NewValidationError("languages", "at most one primary language is allowed")
	}

	topics := make([]model.ProjectTopic, 0, len(req.Topics))
	seenTopic := make(map[string]bool)
	primaries = 0
	for _, in := range req.Topics {
		canonical, ok := NormalizeTopic(in.Name)
		if !ok {
			unknown = append(unknown, in.Name)
			continue
		}
		if seenTopic[canonical] {
			continue
		}
		seenTopic[canonical] = true
		if in.IsPrimary {
			primaries++
		}
		topics = append(topics, model.ProjectTopic{Topic: canonical, IsPrimary: in.IsPrimary})
	}
	if len(unknown) > 0 {
		return nil, util.NewValidationError("topics", "unrecognized topics: %s", strings.Join(unknown, ", "))
	}
	if primaries > 1 {
		return nil, util.NewValidationError("topics", "at most one primary topic is allowed")
	}

	if err := s.ProjectRepo.ReplaceRequirements(projectID, req.Difficulty, languages, topics); err != nil {
		return nil, err
	}
	return s.ProjectRepo.FindByID(projectID)
}
