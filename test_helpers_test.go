package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// configFixture 返回 internal/config/testdata 下指定 fixture 的绝对路径。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(moduleRoot(t), "internal", "config", "testdata", name)
}

// moduleRoot 自当前源文件向上寻找 go.mod 所在目录。
func moduleRoot(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("无法定位当前源文件")
	}

	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("无法定位项目根目录")
		}
		dir = parent
	}
}
