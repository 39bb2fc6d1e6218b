package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/spotter/internal/coach"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/pose"
	"github.com/ayusman/spotter/internal/session"
	"github.com/ayusman/spotter/internal/store"
)

const frameGapMs = 33

func quiet(t *testing.T) {
	t.Helper()
	prev := monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "spotter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// repFrames is one full squat from standing to depth and back.
func repFrames() []pose.Frame {
	var out []pose.Frame
	for a := 180.0; a >= 85; a -= 5 {
		out = append(out, pose.SquatFrame(a))
	}
	for a := 90.0; a <= 180; a += 5 {
		out = append(out, pose.SquatFrame(a))
	}
	return out
}

type feeder struct {
	t  *testing.T
	a  *App
	id string
	ts int64
}

func (f *feeder) feed(frames ...pose.Frame) []session.Update {
	f.t.Helper()
	var out []session.Update
	for _, fr := range frames {
		ts := f.ts
		u, err := f.a.Frame(context.Background(), f.id, FrameInput{TimestampMs: &ts, Landmarks: fr})
		require.NoError(f.t, err)
		out = append(out, u)
		f.ts += frameGapMs
	}
	return out
}

func start(t *testing.T, a *App) *feeder {
	t.Helper()
	info, err := a.Start("squats")
	require.NoError(t, err)
	return &feeder{t: t, a: a, id: info.ID, ts: 1700000000000}
}

func coachServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_Start(t *testing.T) {
	quiet(t)
	a := New(Config{})

	info, err := a.Start("Squat")
	require.NoError(t, err)
	assert.Equal(t, "squats", info.Exercise)
	assert.NotEmpty(t, info.ID)
	assert.Len(t, a.Active(), 1)
	assert.Equal(t, []string{"squats"}, a.Exercises())

	_, err = a.Start("lunges")
	assert.True(t, errors.Is(err, exercise.ErrUnknownExercise))
	assert.Len(t, a.Active(), 1)
}

func TestApp_UnknownSession(t *testing.T) {
	a := New(Config{})

	_, err := a.Frame(context.Background(), "nope", FrameInput{Landmarks: pose.StandingFrame()})
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = a.Reset("nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = a.Snapshot("nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = a.Stop(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestApp_RepPersistedWithAdvice(t *testing.T) {
	quiet(t)
	s := newStore(t)
	srv := coachServer(t, http.StatusOK, `{"text":"Great depth. Keep your chest up."}`)

	a := New(Config{Store: s, Coach: coach.NewClient(srv.URL, time.Second)})
	f := start(t, a)

	completed := 0
	for _, u := range f.feed(repFrames()...) {
		if u.Completed != nil {
			completed++
		}
	}
	require.Equal(t, 1, completed)

	snap, err := a.Snapshot(f.id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.State.Reps)

	res, err := a.Stop(context.Background(), f.id)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Equal(t, "Great depth. Keep your chest up.", res.Advice)
	assert.Equal(t, 1, res.Summary.TotalReps)
	assert.Equal(t, 1, res.Stats.Valid)
	assert.Empty(t, a.Active())

	stored, err := s.Sessions().Get(f.id)
	require.NoError(t, err)
	assert.Equal(t, "squats", stored.Exercise)
	assert.Equal(t, 1, stored.TotalReps)
	assert.Equal(t, res.Advice, stored.Advice)
	require.Len(t, stored.Reps, 1)
	assert.Greater(t, stored.Reps[0].Duration, 0.0)

	_, err = a.Stop(context.Background(), f.id)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestApp_CoachFailureDoesNotFailStop(t *testing.T) {
	quiet(t)
	s := newStore(t)
	srv := coachServer(t, http.StatusInternalServerError, "boom")

	a := New(Config{Store: s, Coach: coach.NewClient(srv.URL, time.Second)})
	f := start(t, a)
	f.feed(repFrames()...)

	res, err := a.Stop(context.Background(), f.id)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Empty(t, res.Advice)

	stored, err := s.Sessions().Get(f.id)
	require.NoError(t, err)
	assert.Empty(t, stored.Advice)
}

func TestApp_StopWithoutStore(t *testing.T) {
	quiet(t)
	a := New(Config{})
	f := start(t, a)

	res, err := a.Stop(context.Background(), f.id)
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, 0, res.Summary.TotalReps)
	assert.NotNil(t, res.Summary.Reps)
}

func TestApp_Reset(t *testing.T) {
	quiet(t)
	a := New(Config{})
	f := start(t, a)
	f.feed(repFrames()...)

	u, err := a.Reset(f.id)
	require.NoError(t, err)
	assert.Equal(t, 0, u.State.Reps)
	assert.Empty(t, u.State.History)

	f.feed(repFrames()...)
	res, err := a.Stop(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.TotalReps)
}

func TestApp_MalformedFrame(t *testing.T) {
	quiet(t)
	a := New(Config{})
	f := start(t, a)

	_, err := a.Frame(context.Background(), f.id, FrameInput{Landmarks: pose.Frame{}})
	assert.True(t, errors.Is(err, exercise.ErrMalformedFrame))

	f.feed(pose.StandingFrame())
}

func TestApp_ConcurrentSessions(t *testing.T) {
	quiet(t)
	a := New(Config{})

	var wg sync.WaitGroup
	results := make([]*Result, 4)
	for i := range results {
		f := start(t, a)
		wg.Add(1)
		go func(i int, f *feeder) {
			defer wg.Done()
			for _, fr := range repFrames() {
				ts := f.ts
				if _, err := a.Frame(context.Background(), f.id, FrameInput{TimestampMs: &ts, Landmarks: fr}); err != nil {
					t.Errorf("frame: %v", err)
					return
				}
				f.ts += frameGapMs
			}
			res, err := a.Stop(context.Background(), f.id)
			if err != nil {
				t.Errorf("stop: %v", err)
				return
			}
			results[i] = res
		}(i, f)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 1, res.Summary.TotalReps)
	}
}

// recorderScript writes each request it receives to its own file.
const recorderScript = `#!/bin/sh
cat > "req.$$.json"
echo '{"success":true}'
`

func recordedEvents(t *testing.T, dir string) []plugin.Request {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "req.*.json"))
	require.NoError(t, err)

	var out []plugin.Request
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		var req plugin.Request
		require.NoError(t, json.Unmarshal(data, &req))
		out = append(out, req)
	}
	return out
}

func TestApp_FiresHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
	quiet(t)

	root := t.TempDir()
	dir := filepath.Join(root, "recorder")
	require.NoError(t, os.MkdirAll(dir, 0755))
	manifest, _ := json.Marshal(plugin.Manifest{
		Name:       "recorder",
		Executable: "run.sh",
		Events:     []plugin.Event{plugin.EventRepCompleted, plugin.EventSessionCompleted},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), manifest, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(recorderScript), 0755))

	mgr := plugin.NewManager(root)
	require.NoError(t, mgr.Discover())

	a := New(Config{Hooks: plugin.NewDispatcher(mgr, plugin.NewExecutor(5*time.Second), nil)})
	f := start(t, a)
	f.feed(repFrames()...)
	a.Close(context.Background())

	events := map[plugin.Event]plugin.Request{}
	for _, req := range recordedEvents(t, dir) {
		events[req.Event] = req
	}
	require.Len(t, events, 2)

	rep := events[plugin.EventRepCompleted]
	assert.Equal(t, f.id, rep.Session)
	assert.Equal(t, "squats", rep.Exercise)
	assert.Equal(t, 1, rep.Reps)

	done := events[plugin.EventSessionCompleted]
	assert.Equal(t, 1, done.Reps)
	assert.Empty(t, a.Active())
}

func TestApp_Replay(t *testing.T) {
	quiet(t)
	s := newStore(t)

	now := time.Unix(1700000000, 0)
	clock := func() time.Time {
		now = now.Add(frameGapMs * time.Millisecond)
		return now
	}
	a := New(Config{Store: s, Clock: clock})

	var buf bytes.Buffer
	for i, fr := range repFrames() {
		switch i {
		case 3:
			buf.WriteString("not json\n\n")
		case 5:
			buf.WriteString("[]\n")
		}
		var line []byte
		if i%2 == 0 {
			line, _ = json.Marshal(fr)
		} else {
			line, _ = json.Marshal(FrameInput{Landmarks: fr})
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	updates := 0
	res, err := a.Replay(context.Background(), &buf, "squats", func(line int, u session.Update) {
		updates++
	})
	require.NoError(t, err)
	assert.Equal(t, len(repFrames()), updates)
	assert.Equal(t, 1, res.Summary.TotalReps)
	assert.True(t, res.Stored)
	assert.Empty(t, a.Active())
}

func TestApp_ReplayBrowserRecording(t *testing.T) {
	quiet(t)

	frozen := time.Unix(1700000000, 0)
	a := New(Config{Clock: func() time.Time { return frozen }})

	var buf bytes.Buffer
	stamp := int64(1718000000000)
	for i, fr := range repFrames() {
		if i == 10 {
			incomplete := make([]map[string]float64, pose.NumLandmarks)
			for j := range incomplete {
				incomplete[j] = map[string]float64{"y": 0.5}
			}
			line, _ := json.Marshal(map[string]interface{}{"timestamp": stamp, "landmarks": incomplete})
			buf.Write(line)
			buf.WriteByte('\n')
		}
		line, err := json.Marshal(map[string]interface{}{"timestamp": stamp, "landmarks": fr})
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
		stamp += frameGapMs
	}

	updates := 0
	res, err := a.Replay(context.Background(), &buf, "squats", func(int, session.Update) { updates++ })
	require.NoError(t, err)
	assert.Equal(t, len(repFrames()), updates)
	require.Len(t, res.Summary.Reps, 1)

	rep := res.Summary.Reps[0]
	assert.InDelta(t, 0.66, rep.Duration, 0.07)
	require.NotNil(t, rep.Metrics)
	assert.Greater(t, rep.Metrics.EccentricDuration, 0.0)
	assert.Greater(t, rep.Metrics.ConcentricDuration, 0.0)
}

func TestFrameInput_Stamp(t *testing.T) {
	fallback := time.Unix(42, 0)
	clock := func() time.Time { return fallback }
	ms, alias := int64(5000), int64(9000)

	assert.Equal(t, fallback, FrameInput{}.stamp(clock))
	assert.Equal(t, time.UnixMilli(alias), FrameInput{Timestamp: &alias}.stamp(clock))
	assert.Equal(t, time.UnixMilli(ms), FrameInput{TimestampMs: &ms, Timestamp: &alias}.stamp(clock))
}

func TestFrameInput_RejectsIncompleteLandmarks(t *testing.T) {
	entries := make([]string, pose.NumLandmarks)
	for i := range entries {
		entries[i] = `{"y":0.5}`
	}
	entries[pose.RightKnee] = "null"

	var in FrameInput
	err := json.Unmarshal([]byte(`{"landmarks":[`+strings.Join(entries, ",")+`]}`), &in)
	assert.True(t, errors.Is(err, pose.ErrMalformed))
}

func TestApp_ReplayUnknownExercise(t *testing.T) {
	a := New(Config{})
	_, err := a.Replay(context.Background(), strings.NewReader(""), "pushups", nil)
	assert.True(t, errors.Is(err, exercise.ErrUnknownExercise))
}

func TestApp_ReplayCancelled(t *testing.T) {
	quiet(t)
	s := newStore(t)
	a := New(Config{Store: s})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line, _ := json.Marshal(pose.StandingFrame())
	_, err := a.Replay(ctx, bytes.NewReader(append(line, '\n')), "squats", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, a.Active())

	list, err := s.Sessions().List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreBindings(t *testing.T) {
	s := newStore(t)
	hooks := s.Hooks()

	require.NoError(t, hooks.Create(&store.Hook{Event: "rep_failed", PluginName: "announce", Config: json.RawMessage(`{"voice":"en"}`), Enabled: true}))
	disabled := &store.Hook{Event: "rep_failed", PluginName: "muted", Enabled: true}
	require.NoError(t, hooks.Create(disabled))
	require.NoError(t, hooks.SetEnabled(disabled.ID, false))
	require.NoError(t, hooks.Create(&store.Hook{Event: "session_completed", PluginName: "other", Enabled: true}))

	bindings, err := StoreBindings(s).Bindings(plugin.EventRepFailed)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "announce", bindings[0].Plugin)
	assert.JSONEq(t, `{"voice":"en"}`, string(bindings[0].Config))
}
