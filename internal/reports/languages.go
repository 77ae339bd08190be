// Copyright 2025 The Gitbrag Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reports

import (
	"path"
	"sort"
	"strings"
)

// languageTopN is how many languages the report's breakdown lists.
const languageTopN = 10

// extensionLanguages maps lowercased file extensions to language names.
var extensionLanguages = map[string]string{
	// Python
	".py":  "Python",
	".pyx": "Python",
	".pyi": "Python",
	".pyw": "Python",
	".pyz": "Python",
	".pth": "Python",
	// JavaScript/TypeScript
	".js":  "JavaScript",
	".jsx": "JavaScript",
	".mjs": "JavaScript",
	".cjs": "JavaScript",
	".ts":  "TypeScript",
	".tsx": "TypeScript",
	".mts": "TypeScript",
	".cts": "TypeScript",
	// Java/JVM
	".java":   "Java",
	".class":  "Java",
	".jar":    "Java",
	".kt":     "Kotlin",
	".kts":    "Kotlin",
	".scala":  "Scala",
	".sc":     "Scala",
	".groovy": "Groovy",
	".gradle": "Groovy",
	".clj":    "Clojure",
	".cljs":   "Clojure",
	".cljc":   "Clojure",
	".edn":    "Clojure",
	// C/C++
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".cc":   "C++",
	".cxx":  "C++",
	".c++":  "C++",
	".hpp":  "C++",
	".hh":   "C++",
	".hxx":  "C++",
	".h++":  "C++",
	".cppm": "C++",
	".ixx":  "C++",
	// C#/.NET
	".cs":     "C#",
	".csx":    "C#",
	".cake":   "C#",
	".cshtml": "C#",
	".razor":  "Razor",
	".xaml":   "XAML",
	// F#
	".fs":     "F#",
	".fsx":    "F#",
	".fsi":    "F#",
	".fsproj": "F#",
	// Go
	".go": "Go",
	// Rust
	".rs":   "Rust",
	".rlib": "Rust",
	// Ruby
	".rb":      "Ruby",
	".rake":    "Ruby",
	".gemspec": "Ruby",
	".rbw":     "Ruby",
	".erb":     "Ruby",
	// PHP
	".php":   "PHP",
	".php3":  "PHP",
	".php4":  "PHP",
	".php5":  "PHP",
	".php7":  "PHP",
	".php8":  "PHP",
	".phtml": "PHP",
	".phar":  "PHP",
	// Swift
	".swift": "Swift",
	// Objective-C
	".m":  "Objective-C",
	".mm": "Objective-C",
	// R
	".r":   "R",
	".rmd": "R",
	// Shell/Scripting
	".sh":   "Shell",
	".bash": "Bash",
	".zsh":  "Zsh",
	".fish": "Fish",
	".ksh":  "Ksh",
	".csh":  "Csh",
	".tcsh": "Tcsh",
	// PowerShell
	".ps1":  "PowerShell",
	".psm1": "PowerShell",
	".psd1": "PowerShell",
	// Batch/CMD
	".bat": "Batch",
	".cmd": "Batch",
	// Perl
	".pl":  "Perl",
	".pm":  "Perl",
	".pod": "Perl",
	".t":   "Perl",
	// Lua
	".lua": "Lua",
	// Julia
	".jl": "Julia",
	// Haskell
	".hs":    "Haskell",
	".lhs":   "Haskell",
	".cabal": "Haskell",
	// OCaml
	".ml":  "OCaml",
	".mli": "OCaml",
	".mll": "OCaml",
	".mly": "OCaml",
	// Elixir
	".ex":  "Elixir",
	".exs": "Elixir",
	// Erlang
	".erl":     "Erlang",
	".hrl":     "Erlang",
	".escript": "Erlang",
	// Elm
	".elm": "Elm",
	// Dart/Flutter
	".dart": "Dart",
	// Zig
	".zig": "Zig",
	// Nim
	".nim":    "Nim",
	".nims":   "Nim",
	".nimble": "Nim",
	// V
	".v": "V",
	// Crystal
	".cr": "Crystal",
	// D
	".d": "D",
	// Pascal/Delphi
	".pas": "Pascal",
	".pp":  "Pascal",
	".dpr": "Delphi",
	// Fortran
	".f":   "Fortran",
	".for": "Fortran",
	".f90": "Fortran",
	".f95": "Fortran",
	".f03": "Fortran",
	".f08": "Fortran",
	// COBOL
	".cob": "COBOL",
	".cbl": "COBOL",
	// Lisp variants
	".lisp": "Lisp",
	".lsp":  "Lisp",
	".cl":   "Common Lisp",
	".el":   "Emacs Lisp",
	".scm":  "Scheme",
	".ss":   "Scheme",
	".rkt":  "Racket",
	// Prolog
	".pro": "Prolog",
	// HTML/Web
	".html":     "HTML",
	".htm":      "HTML",
	".xhtml":    "HTML",
	".shtml":    "HTML",
	".ejs":      "EJS",
	".hbs":      "Handlebars",
	".mustache": "Mustache",
	".pug":      "Pug",
	".jade":     "Jade",
	".haml":     "Haml",
	".twig":     "Twig",
	".njk":      "Nunjucks",
	".liquid":   "Liquid",
	// CSS/Styling
	".css":     "CSS",
	".scss":    "SCSS",
	".sass":    "Sass",
	".less":    "Less",
	".styl":    "Stylus",
	".stylus":  "Stylus",
	".postcss": "PostCSS",
	// Web frameworks
	".vue":    "Vue",
	".svelte": "Svelte",
	".astro":  "Astro",
	".marko":  "Marko",
	// SQL variants
	".sql":   "SQL",
	".psql":  "PostgreSQL",
	".plsql": "PL/SQL",
	".tsql":  "T-SQL",
	".mysql": "MySQL",
	// GraphQL
	".graphql": "GraphQL",
	".gql":     "GraphQL",
	// IDLs
	".proto":  "Protocol Buffers",
	".thrift": "Thrift",
	".avsc":   "Avro",
	".avdl":   "Avro",
	// Markdown/Documentation
	".md":       "Markdown",
	".markdown": "Markdown",
	".mdown":    "Markdown",
	".mkd":      "Markdown",
	".rst":      "reStructuredText",
	".rest":     "reStructuredText",
	".txt":      "Text",
	".text":     "Text",
	".tex":      "LaTeX",
	".latex":    "LaTeX",
	".adoc":     "AsciiDoc",
	".asciidoc": "AsciiDoc",
	".org":      "Org Mode",
	// Config/Data formats
	".json":       "JSON",
	".jsonc":      "JSON",
	".json5":      "JSON5",
	".yaml":       "YAML",
	".yml":        "YAML",
	".toml":       "TOML",
	".xml":        "XML",
	".plist":      "Plist",
	".ini":        "INI",
	".cfg":        "Config",
	".conf":       "Config",
	".config":     "Config",
	".properties": "Properties",
	".env":        "Environment",
	// Infrastructure as code
	".tf":     "Terraform",
	".tfvars": "Terraform",
	".tofu":   "Terraform",
	".bicep":  "Bicep",
	".cdk":    "CDK",
	".pulumi": "Pulumi",
	// Containers
	".dockerfile":    "Dockerfile",
	".containerfile": "Containerfile",
	".template":      "CloudFormation",
	// Build systems
	".makefile": "Makefile",
	".mk":       "Makefile",
	".mak":      "Makefile",
	".cmake":    "CMake",
	".bazel":    "Bazel",
	".bzl":      "Bazel",
	".build":    "Build",
	".ninja":    "Ninja",
	// Package managers
	".lock":    "Lock",
	".gemfile": "Bundler",
	".podspec": "CocoaPods",
	// Assembly/Low-level
	".asm":  "Assembly",
	".s":    "Assembly",
	".nasm": "NASM",
	".wasm": "WebAssembly",
	".wat":  "WebAssembly Text",
	// Hardware description
	".vhd":     "VHDL",
	".vhdl":    "VHDL",
	".verilog": "Verilog",
	// Shaders
	".glsl":  "GLSL",
	".vert":  "GLSL",
	".frag":  "GLSL",
	".hlsl":  "HLSL",
	".metal": "Metal",
	// Game development
	".gd":       "GDScript",
	".gdscript": "GDScript",
	".unity":    "Unity",
	".unreal":   "Unreal",
	// Notebooks
	".ipynb": "Jupyter",
	// AWK/Sed
	".awk": "AWK",
	".sed": "Sed",
	// Vim
	".vim": "Vim Script",
	// Other specialized
	".dot":  "DOT",
	".bnf":  "BNF",
	".ebnf": "EBNF",
	".abnf": "ABNF",
	".pest": "Pest",
}

// specialFiles maps well-known lowercased file names, mostly extensionless,
// to language names. Checked before the extension lookup.
var specialFiles = map[string]string{
	"dockerfile":          "Dockerfile",
	"containerfile":       "Containerfile",
	"makefile":            "Makefile",
	"rakefile":            "Ruby",
	"gemfile":             "Ruby",
	"podfile":             "Ruby",
	"vagrantfile":         "Ruby",
	"berksfile":           "Ruby",
	"thorfile":            "Ruby",
	"guardfile":           "Ruby",
	"capfile":             "Ruby",
	"brewfile":            "Ruby",
	"fastfile":            "Ruby",
	"appfile":             "Ruby",
	"deliverfile":         "Ruby",
	"matchfile":           "Ruby",
	"scanfile":            "Ruby",
	"snapfile":            "Ruby",
	"gymfile":             "Ruby",
	"procfile":            "Procfile",
	"justfile":            "Just",
	"cmakelists.txt":      "CMake",
	"build.gradle":        "Gradle",
	"settings.gradle":     "Gradle",
	"build.gradle.kts":    "Gradle",
	"settings.gradle.kts": "Gradle",
	".bashrc":             "Bash",
	".zshrc":              "Zsh",
	".profile":            "Shell",
	".bash_profile":       "Bash",
	".bash_aliases":       "Bash",
	".gitignore":          "Git",
	".gitattributes":      "Git",
	".gitmodules":         "Git",
	".dockerignore":       "Docker",
	".editorconfig":       "EditorConfig",
	".pylintrc":           "Python",
	".flake8":             "Python",
	".eslintrc":           "JavaScript",
	".prettierrc":         "JavaScript",
	".babelrc":            "JavaScript",
}

// DetectLanguage maps a changed file's path to a language name, or "" when
// the file is not recognized. Well-known file names take precedence over the
// extension.
func DetectLanguage(file string) string {
	base := strings.ToLower(path.Base(file))
	if lang, ok := specialFiles[base]; ok {
		return lang
	}
	// Dotfiles have no extension; their known forms are all special names.
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}
	return extensionLanguages[base[idx:]]
}

// LanguageShare is one language's slice of the report's changed files.
type LanguageShare struct {
	Language string `json:"language"`
	// Percentage of all recognized changed files, in [0, 100].
	Percentage float64 `json:"percentage"`
}

// languageBreakdown computes the top-N languages across the changed files of
// all PRs, by file count. Files with unrecognized names contribute nothing.
func languageBreakdown(prs []PullRequest, topN int) []LanguageShare {
	counts := map[string]int{}
	total := 0
	for _, pr := range prs {
		for _, file := range pr.Files {
			if lang := DetectLanguage(file); lang != "" {
				counts[lang]++
				total++
			}
		}
	}
	if total == 0 {
		return nil
	}

	languages := make([]string, 0, len(counts))
	for lang := range counts {
		languages = append(languages, lang)
	}
	sort.Slice(languages, func(i, j int) bool {
		if counts[languages[i]] != counts[languages[j]] {
			return counts[languages[i]] > counts[languages[j]]
		}
		return languages[i] < languages[j]
	})
	if len(languages) > topN {
		languages = languages[:topN]
	}

	breakdown := make([]LanguageShare, len(languages))
	for i, lang := range languages {
		breakdown[i] = LanguageShare{
			Language:   lang,
			Percentage: float64(counts[lang]) / float64(total) * 100,
		}
	}
	return breakdown
}
