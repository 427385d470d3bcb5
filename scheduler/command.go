package scheduler

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/kballard/go-shellquote"
)

// CommandConfig describes an external ingestion script.
type CommandConfig struct {
	ProjectDir   string
	ScriptName   string
	VenvActivate string
}

// ShellLine returns the bash command line that activates the environment,
// changes into the project directory and runs the script. Paths are shell
// quoted. A ScriptName ending in .py is run with python; anything else is
// used as a command line as-is.
func (c CommandConfig) ShellLine() string {
	var steps []string
	if c.VenvActivate != "" {
		steps = append(steps, "source "+shellquote.Join(c.VenvActivate))
	}
	if c.ProjectDir != "" {
		steps = append(steps, "cd "+shellquote.Join(c.ProjectDir))
	}
	if strings.HasSuffix(c.ScriptName, ".py") && !strings.ContainsAny(c.ScriptName, " \t") {
		steps = append(steps, shellquote.Join("python", c.ScriptName))
	} else {
		steps = append(steps, c.ScriptName)
	}
	return strings.Join(steps, " && ")
}

// CommandJob runs the configured script through /bin/bash.
func CommandJob(cfg CommandConfig, logger *log.Logger) Job {
	logger = logger.WithPrefix("command")
	return func(ctx context.Context) error {
		line := cfg.ShellLine()
		cmd := exec.CommandContext(ctx, "/bin/bash", "-c", line)
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			logger.Debug("Script output", "output", string(out))
		}
		if err != nil {
			return fmt.Errorf("running %q: %w", line, err)
		}
		logger.Info("Script finished", "command", line)
		return nil
	}
}
