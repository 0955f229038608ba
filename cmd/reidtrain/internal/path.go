package internal

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// StateDirEnv 可覆盖默认的状态目录。
const StateDirEnv = "REIDTRAIN_HOME"

// DefaultStateDir 返回运行记录所在目录，默认 ~/.reidtrain。
func DefaultStateDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(StateDirEnv)); dir != "" {
		return filepath.Abs(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".reidtrain"), nil
}

// DBPath 返回状态目录下的 sqlite 数据库路径。
func DBPath(stateDir string) string {
	return filepath.Join(stateDir, "runs.db")
}

// IndexDir 返回状态目录下的 bleve 索引路径。
func IndexDir(stateDir string) string {
	return filepath.Join(stateDir, "index", "runs")
}

// GitRev 返回 dir 所在 Git 仓库的短提交号。
// 不在仓库中或没有 git 时返回空字符串。
func GitRev(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}
