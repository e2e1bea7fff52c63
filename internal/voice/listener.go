package voice

import (
	"bufio"
	"context"
	"os/exec"
	"time"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
)

// restartDelay throttles recognizer restarts when the external process keeps
// exiting (missing model, broken microphone).
const restartDelay = 5 * time.Second

// Listener runs the external speech recognizer and feeds each transcript
// line it prints to the handler. The recognizer itself (Vosk, whisper.cpp,
// anything that writes one utterance per stdout line) is an external
// collaborator; configuring audio devices for it is out of scope here.
type Listener struct {
	command string
	args    []string
	handler func(line string)
}

// NewListener constructs a Listener. handler is called on the listener
// goroutine for every non-empty transcript line.
func NewListener(cfg config.SpeechConfig, handler func(line string)) *Listener {
	return &Listener{
		command: cfg.Command,
		args:    cfg.Args,
		handler: handler,
	}
}

// Run starts the recognizer and restarts it if it exits, until ctx is
// canceled. Returns immediately if no recognizer command is configured.
func (l *Listener) Run(ctx context.Context) {
	if l.command == "" {
		appLog.Info("voice listening disabled (no recognizer command configured)")
		return
	}

	for ctx.Err() == nil {
		if err := l.runOnce(ctx); err != nil && ctx.Err() == nil {
			appLog.Error("speech recognizer exited", err, "command", l.command)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, l.command, l.args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	appLog.Info("speech recognizer started", "command", l.command)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		appLog.Debug("transcript", "text", line)
		l.handler(line)
	}

	return cmd.Wait()
}
