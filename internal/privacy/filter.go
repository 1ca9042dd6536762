// Package privacy redacts secrets and personal data from command text and
// command output before anything is stored.
//
// All filtering is pure: a Filter only reads its compiled pattern list, which
// is rebuilt from configuration by New and Reconfigure and never per call.
package privacy

import (
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxOutputLength is the number of characters kept from command output.
const MaxOutputLength = 1000

// TruncationMarker is appended to output cut at MaxOutputLength.
const TruncationMarker = "...[truncated]"

// Config toggles the redaction categories.
type Config struct {
	FilterPasswords   bool     `mapstructure:"filter_passwords" json:"filter_passwords"`
	FilterTokens      bool     `mapstructure:"filter_tokens" json:"filter_tokens"`
	FilterSSHKeys     bool     `mapstructure:"filter_ssh_keys" json:"filter_ssh_keys"`
	FilterIPAddresses bool     `mapstructure:"filter_ip_addresses" json:"filter_ip_addresses"`
	FilterEmails      bool     `mapstructure:"filter_emails" json:"filter_emails"`
	AnonymizeUsername bool     `mapstructure:"anonymize_username" json:"anonymize_username"`
	AnonymizeHostname bool     `mapstructure:"anonymize_hostname" json:"anonymize_hostname"`
	CustomPatterns    []string `mapstructure:"custom_patterns" json:"custom_patterns"`
	SensitiveDirs     []string `mapstructure:"sensitive_dirs" json:"sensitive_dirs"`
}

// DefaultSensitiveDirs are directory names whose contents are never recorded.
var DefaultSensitiveDirs = []string{
	".ssh", ".aws", ".gnupg", ".kube", ".docker", ".azure", ".config/gcloud",
	".password-store", ".vault-token", ".netrc", "secrets", "credentials",
}

// DefaultConfig enables every category.
func DefaultConfig() Config {
	return Config{
		FilterPasswords:   true,
		FilterTokens:      true,
		FilterSSHKeys:     true,
		FilterIPAddresses: true,
		FilterEmails:      true,
		AnonymizeUsername: true,
		AnonymizeHostname: true,
		SensitiveDirs:     append([]string(nil), DefaultSensitiveDirs...),
	}
}

// Filter applies the configured redaction rules.
type Filter struct {
	cfg      Config
	patterns []Pattern
	username string
	hostname string
}

// Option customizes a Filter.
type Option func(*Filter)

// WithIdentity overrides the user and host names used for anonymization.
func WithIdentity(username, hostname string) Option {
	return func(f *Filter) {
		f.username = username
		f.hostname = hostname
	}
}

// New compiles cfg into a Filter. It fails only on an invalid custom pattern.
func New(cfg Config, opts ...Option) (*Filter, error) {
	f := &Filter{username: currentUsername(), hostname: currentHostname()}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Reconfigure recompiles the pattern list from cfg. On error the previous
// configuration stays in effect.
func (f *Filter) Reconfigure(cfg Config) error {
	patterns, err := CompilePatterns(cfg)
	if err != nil {
		return err
	}
	f.cfg = cfg
	f.patterns = patterns
	return nil
}

// Config returns the active configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// FilterCommand redacts a command line.
func (f *Filter) FilterCommand(text string) string {
	if text == "" {
		return text
	}
	out := f.applyPatterns(text)
	out = f.filterPaths(out)
	if isSensitiveCommand(out) {
		out = heavyFilter(out)
	}
	return f.anonymize(out)
}

// FilterOutput redacts captured command output and bounds its length.
func (f *Filter) FilterOutput(text string) string {
	if text == "" {
		return text
	}
	out := f.applyPatterns(text)
	out = f.filterPaths(out)
	out = heavyFilterLines(out)
	out = f.anonymize(out)
	return truncate(out, MaxOutputLength)
}

// FilterPath redacts a single filesystem path, such as a working directory.
func (f *Filter) FilterPath(path string) string {
	if path == "" {
		return path
	}
	return f.anonymize(f.redactPathToken(path))
}

// ShouldSkipCommand reports whether a command must not be recorded at all.
func (f *Filter) ShouldSkipCommand(text string) bool {
	for _, re := range skipPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (f *Filter) applyPatterns(text string) string {
	for _, p := range f.patterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

var tokenRe = regexp.MustCompile(`\S+`)

// filterPaths replaces the first sensitive segment of any path-like token,
// and everything after it, with TokenSensitivePath.
func (f *Filter) filterPaths(text string) string {
	if len(f.cfg.SensitiveDirs) == 0 {
		return text
	}
	return tokenRe.ReplaceAllStringFunc(text, f.redactPathToken)
}

func (f *Filter) redactPathToken(tok string) string {
	if !looksLikePath(tok) {
		return tok
	}
	segments := strings.Split(tok, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if !f.isSensitiveSegment(seg, segments[i:]) {
			continue
		}
		if i == 0 {
			return TokenSensitivePath
		}
		return strings.Join(segments[:i], "/") + "/" + TokenSensitivePath
	}
	return tok
}

// isSensitiveSegment matches a single segment, or a multi-segment entry such
// as ".config/gcloud" against the remaining path.
func (f *Filter) isSensitiveSegment(seg string, rest []string) bool {
	for _, dir := range f.cfg.SensitiveDirs {
		if dir == "" {
			continue
		}
		if strings.Contains(dir, "/") {
			n := strings.Count(dir, "/") + 1
			if len(rest) >= n && strings.Contains(strings.Join(rest[:n], "/"), dir) {
				return true
			}
			continue
		}
		if strings.Contains(seg, dir) {
			return true
		}
	}
	return false
}

func looksLikePath(tok string) bool {
	return strings.Contains(tok, "/") || strings.HasPrefix(tok, ".") || strings.HasPrefix(tok, "~")
}

func (f *Filter) anonymize(text string) string {
	if f.cfg.AnonymizeUsername && len(f.username) > 1 {
		text = strings.ReplaceAll(text, f.username, TokenUser)
	}
	if f.cfg.AnonymizeHostname && len(f.hostname) > 1 {
		text = strings.ReplaceAll(text, f.hostname, TokenHost)
	}
	return text
}

// isSensitiveCommand reports whether the command's tool (after an optional
// sudo) is in sensitiveTools.
func isSensitiveCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	tool := fields[0]
	if tool == "sudo" && len(fields) > 1 {
		tool = fields[1]
	}
	return sensitiveTools[filepath.Base(tool)]
}

// heavyFilter keeps the tool and its flags but drops anything that may hold a
// credential, host, or connection string.
func heavyFilter(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) < 2 {
		return cmd
	}

	start := 1
	if fields[0] == "sudo" {
		start = 2
	}

	out := make([]string, len(fields))
	copy(out, fields)

	lastPositional := -1
	for i := start; i < len(fields); i++ {
		tok := fields[i]
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			if name, _, ok := strings.Cut(tok, "="); ok {
				if secretFlags[name] {
					out[i] = name + "=" + TokenRedacted
				}
				continue
			}
			if secretFlags[tok] {
				if i+1 < len(fields) && !strings.HasPrefix(fields[i+1], "-") {
					out[i+1] = TokenRedacted
					i++
				}
				continue
			}
			// -psecret is -p secret.
			if !strings.HasPrefix(tok, "--") && len(tok) > 2 && secretFlags[tok[:2]] {
				out[i] = tok[:2] + TokenRedacted
			}
			continue
		}
		if strings.ContainsAny(tok, "@:") {
			out[i] = TokenRedacted
		}
		lastPositional = i
	}
	if lastPositional >= start {
		out[lastPositional] = TokenRedacted
	}
	return strings.Join(out, " ")
}

// heavyFilterLines heavy-filters the lines of output that echo a sensitive
// command.
func heavyFilterLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isSensitiveCommand(line) {
			lines[i] = heavyFilter(line)
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + TruncationMarker
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func currentHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
