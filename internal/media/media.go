// Package media follows the MPRIS playback status through playerctl.
package media

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Status is the playback state of the active media player.
type Status struct {
	Playing bool
	Artist  string
	Title   string
}

const format = "{{status}}\t{{artist}}\t{{title}}"

// Watcher runs `playerctl --follow metadata` and reports status changes.
type Watcher struct {
	command string
	retry   time.Duration
	updates chan Status
}

// NewWatcher creates a watcher using playerctl from $PATH.
func NewWatcher() *Watcher {
	return &Watcher{
		command: "playerctl",
		retry:   10 * time.Second,
		updates: make(chan Status),
	}
}

// Updates delivers a Status whenever playback starts or stops or the track
// changes.
func (w *Watcher) Updates() <-chan Status {
	return w.updates
}

// Run follows playerctl until ctx is done, restarting it if it exits. It
// gives up if playerctl is not installed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		err := w.follow(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, exec.ErrNotFound) {
			log.Info("playerctl not found, media layout switching disabled")
			return
		}
		log.WithError(err).Debug("playerctl exited")
		select {
		case <-time.After(w.retry):
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) follow(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, w.command, "--follow", "metadata", "--format", format)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	log.Debug("Started playerctl stream")
	w.stream(ctx, stdout)
	return cmd.Wait()
}

// stream parses status lines from r and forwards changes.
func (w *Watcher) stream(ctx context.Context, r io.Reader) {
	var last Status
	first := true
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s, ok := parseLine(scanner.Text())
		if !ok || (!first && s == last) {
			continue
		}
		first = false
		last = s
		log.WithField("playing", s.Playing).Debugf("Media: %s - %s", s.Artist, s.Title)
		select {
		case w.updates <- s:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Debug("playerctl stream error")
	}
}

// parseLine reads one line of the follow format. An empty line means the
// last player went away.
func parseLine(line string) (Status, bool) {
	if strings.TrimSpace(line) == "" {
		return Status{}, true
	}
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 {
		return Status{}, false
	}
	return Status{
		Playing: fields[0] == "Playing",
		Artist:  fields[1],
		Title:   fields[2],
	}, true
}
