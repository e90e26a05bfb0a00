// Package shell runs user-plan commands through a safety policy with three
// modes: dry-run staging, direct execution for safe commands, and sandboxed
// execution in a copied working directory for anything that modifies files.
package shell

import (
	"regexp"
	"strings"

	"knowshowgo/internal/config"
)

// blockedPatterns are rejected outright regardless of mode.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/(\s|$|[a-z*])`),
	regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|null\s+2>&1\s*<)`),
	regexp.MustCompile(`\bmkfs(\.[a-z0-9]+)?\b`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;`),
	regexp.MustCompile(`(curl|wget)[^|;]*\|\s*(ba)?sh`),
	regexp.MustCompile(`\bdd\s+[^|;]*of=/dev/`),
}

var sudoPattern = regexp.MustCompile(`(^|\s|;|&&|\|\|)sudo\s`)

// networkCommands need AllowNetwork; everything else is local.
var networkCommands = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true,
	"ssh": true, "scp": true, "rsync": true, "ftp": true, "telnet": true,
}

// modifyingCommands write to the filesystem and force sandbox mode when not
// whitelisted outright.
var modifyingCommands = map[string]bool{
	"rm": true, "mv": true, "cp": true, "mkdir": true, "rmdir": true,
	"touch": true, "tee": true, "truncate": true, "chmod": true,
	"chown": true, "ln": true, "sed": true, "patch": true, "dd": true,
	"git": true, "npm": true, "pip": true, "make": true, "go": true,
}

// Policy decides whether and how a command may run.
type Policy struct {
	safeBinaries map[string]bool
	allowSudo    bool
	allowNetwork bool
}

// NewPolicy builds a policy from the execution config.
func NewPolicy(cfg config.ExecutionConfig) *Policy {
	safe := make(map[string]bool, len(cfg.SafeBinaries))
	for _, b := range cfg.SafeBinaries {
		safe[b] = true
	}
	return &Policy{
		safeBinaries: safe,
		allowSudo:    cfg.AllowSudo,
		allowNetwork: cfg.AllowNetwork,
	}
}

// Verdict is the policy decision for one command.
type Verdict struct {
	Allowed       bool
	Reason        string
	ModifiesFiles bool
	Whitelisted   bool
	NeedsSandbox  bool
}

// Check evaluates a command line.
func (p *Policy) Check(command string) Verdict {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Verdict{Allowed: false, Reason: "empty command"}
	}

	for _, pat := range blockedPatterns {
		if pat.MatchString(trimmed) {
			return Verdict{Allowed: false, Reason: "blocked pattern: " + pat.String()}
		}
	}
	if !p.allowSudo && sudoPattern.MatchString(" "+trimmed) {
		return Verdict{Allowed: false, Reason: "sudo not permitted"}
	}

	modifies := false
	whitelisted := true
	network := false
	for _, binary := range leadingBinaries(trimmed) {
		if modifyingCommands[binary] {
			modifies = true
		}
		if networkCommands[binary] {
			network = true
		}
		if !p.safeBinaries[binary] {
			whitelisted = false
		}
	}
	// Shell redirection writes files even when the binary itself is safe.
	if strings.ContainsAny(trimmed, ">") {
		modifies = true
	}

	if network && !p.allowNetwork {
		return Verdict{Allowed: false, Reason: "network commands not permitted"}
	}

	// Direct when whitelisted or read-only; sandbox when an unlisted
	// command also writes.
	return Verdict{
		Allowed:       true,
		ModifiesFiles: modifies,
		Whitelisted:   whitelisted,
		NeedsSandbox:  modifies && !whitelisted,
	}
}

// leadingBinaries extracts the first word of each pipeline/sequence segment.
func leadingBinaries(command string) []string {
	segments := regexp.MustCompile(`\|\||&&|;|\|`).Split(command, -1)
	var binaries []string
	for _, seg := range segments {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		binaries = append(binaries, name)
	}
	return binaries
}
