//go:build !unix

package main

import "os/exec"

func killGroupOnCancel(cmd *exec.Cmd) {}
