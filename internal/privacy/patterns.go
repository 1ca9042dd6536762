package privacy

import (
	"fmt"
	"regexp"
)

// Replacement tokens written in place of redacted content.
const (
	TokenRedacted      = "<REDACTED>"
	TokenSecret        = "<TOKEN>"
	TokenAWSKey        = "<AWS_KEY>"
	TokenGitHub        = "<GITHUB_TOKEN>"
	TokenJWT           = "<JWT>"
	TokenSlack         = "<SLACK_TOKEN>"
	TokenSSHKey        = "<SSH_PRIVATE_KEY>"
	TokenIP            = "<IP>"
	TokenEmail         = "<EMAIL>"
	TokenCustom        = "<CUSTOM>"
	TokenSensitivePath = "<SENSITIVE_PATH>"
	TokenUser          = "<USER>"
	TokenHost          = "<HOST>"
)

// Pattern is one compiled redaction rule. Replacement may reference capture
// groups using regexp template syntax.
type Pattern struct {
	Category    string
	Regex       *regexp.Regexp
	Replacement string
}

// CompilePatterns turns a Config into the ordered list of redaction rules.
// It is a pure function of cfg. An invalid custom pattern is an error.
//
// Ordering matters within the list: specific token shapes run before the
// generic hex and key=value rules so they keep their dedicated tokens.
func CompilePatterns(cfg Config) ([]Pattern, error) {
	var patterns []Pattern
	add := func(category, expr, repl string) {
		patterns = append(patterns, Pattern{
			Category:    category,
			Regex:       regexp.MustCompile(expr),
			Replacement: repl,
		})
	}

	if cfg.FilterSSHKeys {
		add("ssh_key", `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?(?:-----END [A-Z ]*PRIVATE KEY-----|$)`, TokenSSHKey)
	}

	if cfg.FilterTokens {
		add("token", `\bAKIA[0-9A-Z]{16}\b`, TokenAWSKey)
		add("token", `\bgh[pousr]_[A-Za-z0-9]{30,}\b`, TokenGitHub)
		add("token", `\bgithub_pat_[A-Za-z0-9_]{30,}\b`, TokenGitHub)
		add("token", `\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`, TokenJWT)
		add("token", `\bxox[abposr]-[A-Za-z0-9-]{10,}`, TokenSlack)
		add("token", `(?i)\b(bearer)\s+[A-Za-z0-9\-._~+/]{20,}=*`, "${1} "+TokenSecret)
		add("token", `(?i)\b([A-Za-z0-9_]*(?:api[_-]?key|access[_-]?key|secret[_-]?key|auth[_-]?token|token|secret))(\s*[=:]\s*)["']?[^\s"']+["']?`, "${1}${2}"+TokenRedacted)
		add("token", `\b[a-fA-F0-9]{32,}\b`, TokenSecret)
	}

	if cfg.FilterPasswords {
		add("password", `(?i)\b([A-Za-z0-9_]*(?:password|passwd|pwd))(\s*[=:]\s*)["']?[^\s"']+["']?`, "${1}${2}"+TokenRedacted)
		add("password", `(?i)(--password)\s+\S+`, "${1} "+TokenRedacted)
		add("password", `(://[^:/\s@]+:)[^@\s/]+@`, "${1}"+TokenRedacted+"@")
	}

	if cfg.FilterIPAddresses {
		add("ip", `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`, TokenIP)
	}

	if cfg.FilterEmails {
		add("email", `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`, TokenEmail)
	}

	for _, expr := range cfg.CustomPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("custom pattern %q: %w", expr, err)
		}
		patterns = append(patterns, Pattern{Category: "custom", Regex: re, Replacement: TokenCustom})
	}

	return patterns, nil
}

// skipPatterns describe commands that are never recorded, even redacted.
var skipPatterns = []*regexp.Regexp{
	// Echoing or printing a secret-bearing variable.
	regexp.MustCompile(`(?i)^\s*(?:echo|printf)\b.*\$\{?[A-Z0-9_]*(?:PASS|PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY|PRIVATE_KEY|CREDENTIALS?)[A-Z0-9_]*`),
	// Exporting or assigning a sensitive environment variable.
	regexp.MustCompile(`(?i)^\s*(?:export\s+|set\s+|setenv\s+)?[A-Z0-9_]*(?:PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY|ACCESS_KEY|PRIVATE_KEY|CREDENTIALS?)[A-Z0-9_]*\s*=`),
	// Interactive credential prompts.
	regexp.MustCompile(`^\s*(?:sudo\s+)?(?:passwd|chpasswd|login|vipw|htpasswd)\b`),
	regexp.MustCompile(`^\s*(?:sudo\s+)?su(?:\s+-\S*)?(?:\s+\S+)?\s*$`),
	regexp.MustCompile(`^\s*(?:sudo\s+)?(?:docker|podman|helm|npm)\s+login\b.*(?:-p|--password)\b`),
}

// sensitiveTools are commands whose arguments routinely carry credentials,
// hosts, or connection strings.
var sensitiveTools = map[string]bool{
	"mysql": true, "mysqldump": true, "mariadb": true, "psql": true, "pg_dump": true,
	"mongo": true, "mongosh": true, "mongodump": true, "redis-cli": true,
	"ssh": true, "scp": true, "sftp": true, "sshpass": true, "rsync": true, "ftp": true,
	"telnet": true, "curl": true, "wget": true, "http": true,
	"gpg": true, "openssl": true, "vault": true, "op": true, "pass": true,
	"aws": true, "gcloud": true, "gsutil": true, "az": true, "doctl": true,
	"heroku": true, "flyctl": true, "sqlcmd": true,
}

// secretFlags take a value that must not be stored.
var secretFlags = map[string]bool{
	"-p": true, "--password": true, "--pass": true, "-P": true,
	"-u": true, "--user": true, "--username": true,
	"-h": true, "--host": true, "-H": true, "--header": true,
	"-i": true, "--identity": true, "-k": true, "--key": true,
	"--token": true, "--secret": true, "--passphrase": true,
	"--access-key": true, "--secret-key": true, "--client-secret": true,
	"-d": true, "--data": true, "--data-raw": true,
	"--uri": true, "--url": true, "--dbname": true,
}
