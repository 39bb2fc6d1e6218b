// Package main provides a cue plugin that reads workout events aloud.
// It uses `say` on macOS and `espeak` or `spd-say` elsewhere; without a
// speech engine it only reports the text it would have spoken.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event    string          `json:"event"`
	Session  string          `json:"session"`
	Exercise string          `json:"exercise"`
	Reps     int             `json:"reps"`
	Message  string          `json:"message"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type config struct {
	Voice string `json:"voice"`
	Mute  bool   `json:"mute"`
}

// phraseBuilders maps events to the sentence that is spoken.
var phraseBuilders = map[string]func(Request) string{
	"rep_completed": func(r Request) string {
		if r.Message != "" {
			return fmt.Sprintf("%d. %s", r.Reps, r.Message)
		}
		return fmt.Sprintf("%d.", r.Reps)
	},
	"rep_failed": func(r Request) string {
		if r.Message != "" {
			return r.Message
		}
		return "That one did not count."
	},
	"session_completed": func(r Request) string {
		return fmt.Sprintf("Session complete. %d %s.", r.Reps, plural(r.Reps, "rep", "reps"))
	},
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	build, ok := phraseBuilders[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	var cfg config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	text := build(req)
	engine := "none"
	if !cfg.Mute {
		var err error
		engine, err = speak(text, cfg.Voice)
		if err != nil {
			writeErrorResponse(fmt.Sprintf("speech failed: %v", err))
			return
		}
	}

	writeSuccessResponse(text, engine)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// speak runs the first available speech engine and returns its name.
func speak(text, voice string) (string, error) {
	candidates := []string{"espeak", "spd-say"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}

	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}

		var args []string
		if voice != "" {
			args = append(args, "-v", voice)
		}
		args = append(args, text)

		output, err := exec.Command(path, args...).CombinedOutput()
		if err != nil {
			return name, fmt.Errorf("%w: %s", err, string(output))
		}
		return name, nil
	}

	return "none", nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(text, engine string) {
	data, _ := json.Marshal(map[string]string{"spoken": text, "engine": engine})
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
