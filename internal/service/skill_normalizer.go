package service

import (
	"regexp"
	"strings"
)

// 语言别名表，值为规范名；规范名本身也在表中
var languageAliases = map[string]string{
	"python": "python", "py": "python", "cpython": "python",
	"javascript": "javascript", "js": "javascript", "node": "javascript", "nodejs": "javascript",
	"node.js": "javascript", "ecmascript": "javascript",
	"typescript": "typescript", "ts": "typescript",
	"go": "go", "golang": "go",
	"java": "java",
	"c":    "c", "ansi c": "c",
	"cpp": "cpp", "c++": "cpp", "cplusplus": "cpp", "cxx": "cpp",
	"csharp": "csharp", "c#": "csharp", "cs": "csharp", ".net": "csharp", "dotnet": "csharp",
	"rust": "rust", "rs": "rust",
	"ruby": "ruby", "rb": "ruby",
	"php":    "php",
	"kotlin": "kotlin", "kt": "kotlin",
	"swift":   "swift",
	"scala":   "scala",
	"dart":    "dart",
	"r":       "r",
	"elixir":  "elixir",
	"haskell": "haskell",
	"lua":     "lua",
	"sql":     "sql", "mysql": "sql", "postgresql": "sql", "postgres": "sql", "sqlite": "sql",
	"shell": "shell", "bash": "shell", "sh": "shell", "zsh": "shell",
}

var topicAliases = map[string]string{
	"web": "web", "web-development": "web", "webdev": "web",
	"frontend": "frontend", "front-end": "frontend", "ui": "frontend",
	"backend": "backend", "back-end": "backend", "server": "backend",
	"mobile": "mobile", "android": "mobile", "ios": "mobile",
	"machine-learning": "machine-learning", "ml": "machine-learning", "deep-learning": "machine-learning",
	"ai": "ai", "artificial-intelligence": "ai", "llm": "ai",
	"data-science": "data-science", "data": "data-science", "analytics": "data-science",
	"devops": "devops", "ci-cd": "devops", "infrastructure": "devops",
	"cloud": "cloud", "aws": "cloud", "kubernetes": "cloud", "k8s": "cloud",
	"security": "security", "infosec": "security", "cybersecurity": "security",
	"games": "games", "gamedev": "games", "game-development": "games",
	"blockchain": "blockchain", "web3": "blockchain", "crypto": "blockchain",
	"embedded": "embedded", "iot": "embedded",
	"databases": "databases", "database": "databases", "db": "databases",
	"distributed-systems": "distributed-systems", "distributed": "distributed-systems",
	"networking": "networking", "network": "networking",
	"testing": "testing", "qa": "testing",
	"open-source": "open-source", "oss": "open-source",
	"education": "education",
	"tooling":   "tooling", "developer-tools": "tooling", "cli": "tooling",
}

// python3 / java-17 / go1.22 / node v20 → 去掉版本后缀
var versionSuffix = regexp.MustCompile(`[\s\-_]*v?\d+(\.\d+)*$`)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeLanguage 返回规范语言名；表中没有时 ok=false，不做猜测
func NormalizeLanguage(name string) (string, bool) {
	key := whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
	if key == "" {
		return "", false
	}
	if canonical, ok := languageAliases[key]; ok {
		return canonical, true
	}
	stripped := strings.TrimSpace(versionSuffix.ReplaceAllString(key, ""))
	if stripped != "" && stripped != key {
		if canonical, ok := languageAliases[stripped]; ok {
			return canonical, true
		}
	}
	return "", false
}

// NormalizeTopic 空格与下划线统一为连字符后查表
func NormalizeTopic(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = whitespace.ReplaceAllString(key, "-")
	key = strings.ReplaceAll(key, "_", "-")
	if key == "" {
		return "", false
	}
	canonical, ok := topicAliases[key]
	return canonical, ok
}
