package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"flowstate/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// ErrNoHook means neither [hook] nor [[hooks]] has a command for the job.
var ErrNoHook = errors.New("no hook command configured")

// Job represents a hook invocation request.
type Job struct {
	Text      string
	App       string
	Category  string
	Timestamp time.Time
}

// Runner executes hooks with prefix handling.
type Runner struct {
	cfg      *config.Config
	logger   logrus.FieldLogger
	hostname string
}

func NewRunner(cfg *config.Config, logger logrus.FieldLogger) *Runner {
	host, _ := os.Hostname()
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		hostname: host,
	}
}

// Run executes the hook selected for job with the text as last argument.
func (r *Runner) Run(ctx context.Context, job Job) error {
	hk := SelectHookConfig(r.cfg, job.App, job.Category)
	if hk == nil || strings.TrimSpace(hk.Command) == "" {
		return ErrNoHook
	}
	args := append([]string{}, hk.Args...)
	if len(args) == 0 && hk.ArgString != "" {
		parsed, err := ParseArgs(hk.ArgString)
		if err != nil {
			return fmt.Errorf("hook arg_string: %w", err)
		}
		args = parsed
	}

	prefix := strings.ReplaceAll(hk.Prefix, "${hostname}", r.hostname)
	prefix = strings.ReplaceAll(prefix, "${app}", job.App)
	text := job.Text
	if hk.RedactPII {
		text = redactPII(text)
	}
	payload := strings.TrimSpace(prefix + text)
	args = append(args, payload)

	runCtx := ctx
	var cancel context.CancelFunc
	if hk.TimeoutSec > 0 {
		runCtx, cancel = context.WithTimeout(ctx, config.Seconds(hk.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, hk.Command, args...)
	cmd.Env = os.Environ()
	for k, v := range hk.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("FLOWSTATE_TEXT=%s", text),
		fmt.Sprintf("FLOWSTATE_PREFIX=%s", prefix),
		fmt.Sprintf("FLOWSTATE_APP=%s", job.App),
		fmt.Sprintf("FLOWSTATE_CATEGORY=%s", job.Category),
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs allows hook args to be configured as a single string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
