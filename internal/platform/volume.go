package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"limetuna/internal/domain"
)

// ErrVolumeUnsupported is returned when no volume helper is configured.
var ErrVolumeUnsupported = errors.New("stream volume control is not supported on this platform")

const volumeCommandTimeout = 2 * time.Second

// CommandVolume drives stream volumes through an external helper invoked as
// "<cmd> get <stream>" and "<cmd> set <stream> <level>".
type CommandVolume struct {
	command string
	args    []string
}

// NewCommandVolume splits command on whitespace. An empty command yields a
// control that rejects every call.
func NewCommandVolume(command string) *CommandVolume {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &CommandVolume{}
	}
	return &CommandVolume{command: fields[0], args: fields[1:]}
}

func (v *CommandVolume) StreamVolume(stream domain.AudioStream) (int, error) {
	out, err := v.run("get", string(stream))
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected volume output %q: %w", strings.TrimSpace(out), err)
	}
	return level, nil
}

func (v *CommandVolume) SetStreamVolume(stream domain.AudioStream, level int) error {
	_, err := v.run("set", string(stream), strconv.Itoa(level))
	return err
}

func (v *CommandVolume) run(args ...string) (string, error) {
	if v.command == "" {
		return "", ErrVolumeUnsupported
	}

	ctx, cancel := context.WithTimeout(context.Background(), volumeCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.command, append(append([]string(nil), v.args...), args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("volume helper %s failed: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
