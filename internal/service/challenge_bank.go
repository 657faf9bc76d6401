package service

import (
	"collabhub_backend/internal/model"
	"collabhub_backend/pkg/logger"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChallengeTemplate 题库中的题目模板，Languages 为空表示任何语言都可作答（标准输入输出题）
type ChallengeTemplate struct {
	Key              string            `yaml:"key"`
	Title            string            `yaml:"title"`
	Difficulty       string            `yaml:"difficulty"`
	Languages        []string          `yaml:"languages"`
	Statement        string            `yaml:"statement"`
	StarterCode      map[string]string `yaml:"starter_code"`
	TimeLimitMinutes *int              `yaml:"time_limit_minutes"`
	Tests            []model.TestCase  `yaml:"tests"`
}

func (t *ChallengeTemplate) supports(language string) bool {
	if len(t.Languages) == 0 {
		return true
	}
	for _, l := range t.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// ChallengeBank 临时题目来源，从 YAML 目录加载
type ChallengeBank struct {
	mu        sync.RWMutex
	templates map[string]*ChallengeTemplate
}

func NewChallengeBank() *ChallengeBank {
	return &ChallengeBank{templates: make(map[string]*ChallengeTemplate)}
}

// LoadFromDir 加载目录下所有 *.yaml / *.yml；单个文件出错只记录日志
func (b *ChallengeBank) LoadFromDir(dir string) error {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, f := range files {
		if err := b.LoadFromFile(f); err != nil {
			logger.Log.Warn("failed to load challenge template", zap.String("file", f), zap.Error(err))
			continue
		}
		loaded++
	}
	logger.Log.Info("challenge bank loaded", zap.String("dir", dir), zap.Int("count", loaded), zap.Int("files", len(files)))
	return nil
}

// LoadFromFile 一个文件可包含单个模板或 `challenges:` 列表
func (b *ChallengeBank) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var doc struct {
		ChallengeTemplate `yaml:",inline"`
		Challenges        []ChallengeTemplate `yaml:"challenges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	templates := doc.Challenges
	if doc.Key != "" {
		templates = append(templates, doc.ChallengeTemplate)
	}
	if len(templates) == 0 {
		return fmt.Errorf("no challenges in %s", path)
	}
	for i := range templates {
		if err := b.Add(templates[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *ChallengeBank) Add(t ChallengeTemplate) error {
	if t.Key == "" {
		return fmt.Errorf("challenge key is required")
	}
	if len(t.Tests) == 0 {
		return fmt.Errorf("challenge %s has no tests", t.Key)
	}
	if t.Difficulty == "" {
		t.Difficulty = model.DifficultyIntermediate
	}
	for i, lang := range t.Languages {
		canonical, ok := NormalizeLanguage(lang)
		if !ok {
			return fmt.Errorf("challenge %s: unknown language %q", t.Key, lang)
		}
		t.Languages[i] = canonical
	}

	b.mu.Lock()
	b.templates[t.Key] = &t
	b.mu.Unlock()
	return nil
}

func (b *ChallengeBank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.templates)
}

// Synthesize 按语言与难度选择模板，难度不匹配时取最接近的；seed 用于同一用户重试时轮换
func (b *ChallengeBank) Synthesize(language, difficulty string, seed int) (model.ChallengeSnapshot, bool) {
	b.mu.RLock()
	var candidates []*ChallengeTemplate
	for _, t := range b.templates {
		if t.supports(language) {
			candidates = append(candidates, t)
		}
	}
	b.mu.RUnlock()

	if len(candidates) == 0 {
		return model.ChallengeSnapshot{}, false
	}

	target := model.DifficultyLevel(difficulty)
	sort.Slice(candidates, func(i, j int) bool {
		di := abs(model.DifficultyLevel(candidates[i].Difficulty) - target)
		dj := abs(model.DifficultyLevel(candidates[j].Difficulty) - target)
		if di != dj {
			return di < dj
		}
		return candidates[i].Key < candidates[j].Key
	})
	best := abs(model.DifficultyLevel(candidates[0].Difficulty) - target)
	n := 0
	for n < len(candidates) && abs(model.DifficultyLevel(candidates[n].Difficulty)-target) == best {
		n++
	}
	if seed < 0 {
		seed = -seed
	}
	t := candidates[seed%n]

	tests := make([]model.TestCase, len(t.Tests))
	copy(tests, t.Tests)
	return model.ChallengeSnapshot{
		Origin:           model.ChallengeEphemeral,
		Key:              model.GenerateUUID(),
		Title:            t.Title,
		Language:         language,
		Difficulty:       t.Difficulty,
		Statement:        t.Statement,
		StarterCode:      t.StarterCode[language],
		TestCases:        tests,
		TimeLimitMinutes: t.TimeLimitMinutes,
	}, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
