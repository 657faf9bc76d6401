package sandbox

import "sort"

// Language 运行时描述：Docker 镜像/命令与 Judge0 language_id
type Language struct {
	Name     string
	Image    string
	File     string
	Compile  string
	Run      string
	Judge0ID int
}

var languages = map[string]Language{
	"python": {
		Name: "python", Image: "python:3.12-alpine", File: "main.py",
		Run: "python3 main.py", Judge0ID: 71,
	},
	"javascript": {
		Name: "javascript", Image: "node:20-alpine", File: "main.js",
		Run: "node main.js", Judge0ID: 63,
	},
	"typescript": {
		Name: "typescript", Image: "denoland/deno:alpine", File: "main.ts",
		Run: "deno run --quiet main.ts", Judge0ID: 74,
	},
	"go": {
		Name: "go", Image: "golang:1.22-alpine", File: "main.go",
		Compile: "go build -o main main.go", Run: "./main", Judge0ID: 60,
	},
	"java": {
		Name: "java", Image: "eclipse-temurin:21-jdk-alpine", File: "Main.java",
		Run: "java Main.java", Judge0ID: 62,
	},
	"c": {
		Name: "c", Image: "gcc:13", File: "main.c",
		Compile: "gcc -O2 -o main main.c -lm", Run: "./main", Judge0ID: 50,
	},
	"cpp": {
		Name: "cpp", Image: "gcc:13", File: "main.cpp",
		Compile: "g++ -O2 -std=c++17 -o main main.cpp", Run: "./main", Judge0ID: 54,
	},
	"rust": {
		Name: "rust", Image: "rust:1.77-slim", File: "main.rs",
		Compile: "rustc -O -o main main.rs", Run: "./main", Judge0ID: 73,
	},
	"ruby": {
		Name: "ruby", Image: "ruby:3.3-alpine", File: "main.rb",
		Run: "ruby main.rb", Judge0ID: 72,
	},
}

func LookupLanguage(name string) (Language, bool) {
	l, ok := languages[name]
	return l, ok
}

func SupportedLanguages() []string {
	names := make([]string, 0, len(languages))
	for n := range languages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
