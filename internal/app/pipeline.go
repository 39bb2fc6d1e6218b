package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/session"
)

// maxLineSize bounds one recorded frame.
const maxLineSize = 1 << 20

// Replay runs a recorded session through a fresh live session and stops it.
//
// The log holds one frame per line, either a FrameInput object or a bare
// landmark array. Blank lines are skipped. Lines that do not decode and
// frames the processor discards are logged and skipped; the replay goes on.
// onUpdate, if set, is called for every processed frame with its line number.
func (a *App) Replay(ctx context.Context, r io.Reader, name string, onUpdate func(line int, u session.Update)) (*Result, error) {
	info, err := a.Start(name)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line, skipped := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			a.discard(info.ID)
			return nil, err
		}

		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		in, err := decodeFrame(text)
		if err != nil {
			monitoring.Logf("Replay line %d: %v", line, err)
			skipped++
			continue
		}

		u, err := a.Frame(ctx, info.ID, in)
		if err != nil {
			if errors.Is(err, exercise.ErrMalformedFrame) {
				monitoring.Logf("Replay line %d: %v", line, err)
				skipped++
				continue
			}
			a.discard(info.ID)
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(line, u)
		}
	}
	if err := scanner.Err(); err != nil {
		a.discard(info.ID)
		return nil, fmt.Errorf("read frames: %w", err)
	}

	if skipped > 0 {
		monitoring.Logf("Replay skipped %d of %d lines", skipped, line)
	}
	return a.Stop(ctx, info.ID)
}

func decodeFrame(text []byte) (FrameInput, error) {
	var in FrameInput
	if text[0] == '[' {
		if err := json.Unmarshal(text, &in.Landmarks); err != nil {
			return in, fmt.Errorf("decode landmarks: %w", err)
		}
		return in, nil
	}
	if err := json.Unmarshal(text, &in); err != nil {
		return in, fmt.Errorf("decode frame: %w", err)
	}
	return in, nil
}
