//go:build windows

package skills

import "os/exec"

func setSysProcAttr(_ *exec.Cmd) {}

func setCancelFunc(_ *exec.Cmd) {}
