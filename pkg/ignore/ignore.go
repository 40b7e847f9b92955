package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 目录发布时读取的用户规则文件
const FileName = ".boxpeerignore"

// Matcher 判断目录发布时哪些文件不上账本
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 从 root 下的 .boxpeerignore 编译规则 (没有该文件时只用默认规则)
func NewMatcher(root string) (*Matcher, error) {
	// 默认规则总是生效：本地 pin 目录、凭据和系统垃圾文件都不能发布
	defaultRules := []string{
		".boxpeer",
		".git",
		FileName,

		"config.yaml",
		".env",

		".DS_Store",
		"Thumbs.db",
	}

	var (
		ignorer *gitignore.GitIgnore
		err     error
	)
	path := filepath.Join(root, FileName)
	if _, statErr := os.Stat(path); statErr == nil {
		ignorer, err = gitignore.CompileIgnoreFileAndLines(path, defaultRules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches path 是相对 root 的路径；true 表示跳过
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}
