// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// ScriptParams describes the file swap the update script performs after the
// host exits.
type ScriptParams struct {
	// ExtractDir holds the unpacked bundle.
	ExtractDir string
	// InstallDir receives the new files.
	InstallDir string
	// Archive is the downloaded bundle, removed afterwards.
	Archive string
	// Executable is relaunched once files are in place.
	Executable string
	// PID is the host process to wait for.
	PID int
}

var windowsScript = template.Must(template.New("updater.bat").Parse(`@echo off
chcp 65001 >nul
echo Installing update...
timeout /t 2 /nobreak >nul

taskkill /F /PID {{.PID}} 2>nul
taskkill /F /IM "{{.ExeName}}" 2>nul
timeout /t 1 /nobreak >nul

xcopy /Y /E "{{.ExtractDir}}\*" "{{.InstallDir}}\"

rmdir /S /Q "{{.ExtractDir}}"
del "{{.Archive}}"

echo Starting new version...
start "" "{{.Executable}}"

del "%~f0"
`))

var posixScript = template.Must(template.New("updater.sh").Funcs(template.FuncMap{
	"q": shellQuote,
}).Parse(`#!/bin/sh
echo "Installing update..."
while kill -0 {{.PID}} 2>/dev/null; do
    sleep 1
done

cp -R {{q .ExtractDir}}/. {{q .InstallDir}}/

rm -rf {{q .ExtractDir}}
rm -f {{q .Archive}}

echo "Starting new version..."
nohup {{q .Executable}} >/dev/null 2>&1 &

rm -f "$0"
`))

// ScriptName returns the script file name used on goos.
func ScriptName(goos string) string {
	if goos == "windows" {
		return "worktools_updater.bat"
	}
	return "worktools_updater.sh"
}

// Script renders the update script for goos.
func Script(goos string, p ScriptParams) (string, error) {
	if p.PID <= 0 {
		return "", fmt.Errorf("script: invalid pid %d", p.PID)
	}
	for name, v := range map[string]string{
		"extract dir": p.ExtractDir,
		"install dir": p.InstallDir,
		"archive":     p.Archive,
		"executable":  p.Executable,
	} {
		if v == "" {
			return "", fmt.Errorf("script: %s is required", name)
		}
		if strings.ContainsAny(v, "\r\n") || (goos == "windows" && strings.ContainsAny(v, `"%`)) {
			return "", fmt.Errorf("script: %s contains unsupported characters", name)
		}
	}

	var buf bytes.Buffer
	var err error
	if goos == "windows" {
		err = windowsScript.Execute(&buf, struct {
			ScriptParams
			ExeName string
		}{p, windowsBase(p.Executable)})
	} else {
		err = posixScript.Execute(&buf, p)
	}
	if err != nil {
		return "", fmt.Errorf("script: render: %w", err)
	}

	if goos == "windows" {
		return strings.ReplaceAll(buf.String(), "\n", "\r\n"), nil
	}
	return buf.String(), nil
}

// WriteScript renders the script for goos into dir and returns its path.
func WriteScript(dir, goos string, p ScriptParams) (string, error) {
	body, err := Script(goos, p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("script: create dir: %w", err)
	}
	path := filepath.Join(dir, ScriptName(goos))
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		return "", fmt.Errorf("script: write: %w", err)
	}
	return path, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func windowsBase(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}
