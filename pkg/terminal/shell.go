package terminal

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
)

// ShellInfo describes where a question is being asked from.
type ShellInfo struct {
	Shell            string `json:"shell"`
	CurrentDirectory string `json:"current_directory"`
}

// DetectShell reports the user's shell and working directory. The shell
// comes from $SHELL, then the parent process, then /bin/sh.
func DetectShell() ShellInfo {
	info := ShellInfo{Shell: os.Getenv("SHELL")}
	if info.Shell == "" {
		info.Shell = parentShell()
	}
	if info.Shell == "" {
		info.Shell = "/bin/sh"
	}

	if wd, err := os.Getwd(); err == nil {
		info.CurrentDirectory = wd
	}
	return info
}

func parentShell() string {
	p, err := process.NewProcess(int32(os.Getppid()))
	if err != nil {
		return ""
	}
	if exe, err := p.Exe(); err == nil && exe != "" {
		return exe
	}
	if name, err := p.Name(); err == nil && name != "" {
		return filepath.Base(name)
	}
	return ""
}
