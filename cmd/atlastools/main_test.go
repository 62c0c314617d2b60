package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/atlastools/internal/agent"
	"github.com/stellarlinkco/atlastools/internal/catalog"
	"github.com/stellarlinkco/atlastools/internal/config"
	"github.com/stellarlinkco/atlastools/internal/cron"
)

type mockRuntime struct {
	prompts []string
	closed  bool
}

func (m *mockRuntime) Run(_ context.Context, req api.Request) (*api.Response, error) {
	m.prompts = append(m.prompts, req.Prompt)
	return &api.Response{Result: &api.Result{Output: "echo: " + req.Prompt}}, nil
}

func (m *mockRuntime) Close() { m.closed = true }

type testApp struct {
	*app
	out *bytes.Buffer
	rt  *mockRuntime
}

// newTestApp wires an app against a fake Jira site. Confluence stays
// unconfigured.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/project"):
			fmt.Fprint(w, `[{"id":"1","key":"PROJ","name":"Project","projectTypeKey":"software"}]`)
		case strings.HasSuffix(r.URL.Path, "/myself"):
			fmt.Fprint(w, `{"displayName":"Ada"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errorMessages":["not found"]}`)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Jira = config.AtlassianConfig{URL: srv.URL, Username: "ada@example.com", APIToken: "tok", Timeout: 5}
	cfg.Agent.Workspace = filepath.Join(dir, "workspace")
	cfg.Schedule.StorePath = filepath.Join(dir, "jobs.json")

	out := &bytes.Buffer{}
	rt := &mockRuntime{}
	a := &app{
		loadConfig: func() (*config.Config, error) { return cfg, nil },
		loadCatalog: func(cfg *config.Config, log zerolog.Logger) (*catalog.Catalog, error) {
			return catalog.New(cfg, log)
		},
		runtimeFactory: func(*config.Config, *catalog.Catalog, zerolog.Logger) (agent.Runtime, error) {
			return rt, nil
		},
		stdin:  strings.NewReader(""),
		stdout: out,
		stderr: &bytes.Buffer{},
	}
	return &testApp{app: a, out: out, rt: rt}
}

func (ta *testApp) run(args ...string) error {
	ta.out.Reset()
	root := newRootCmd(ta.app)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return v
}

func TestList(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.run("list"); err != nil {
		t.Fatalf("list error: %v", err)
	}
	all := decode[[]catalog.Summary](t, ta.out.Bytes())
	if len(all) != 28 {
		t.Errorf("len(all) = %d, want 28", len(all))
	}

	if err := ta.run("list", "--category", "jira"); err != nil {
		t.Fatalf("list error: %v", err)
	}
	for _, s := range decode[[]catalog.Summary](t, ta.out.Bytes()) {
		if s.Category != "jira" {
			t.Errorf("unexpected category %q for %s", s.Category, s.Name)
		}
	}
}

// newApp is the only caller of the process-wide catalog in this package.
func TestNewAppBuildsCatalogFromLoadedConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"1","key":"LIVE","name":"Live"}]`)
	}))
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Jira = config.AtlassianConfig{URL: srv.URL, Username: "ada@example.com", APIToken: "tok", Timeout: 5}
	cfg.Log.Level = "debug"

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	a := newApp()
	a.loadConfig = func() (*config.Config, error) { return cfg, nil }
	a.stdin = strings.NewReader("")
	a.stdout, a.stderr = out, errOut

	root := newRootCmd(a)
	root.SetArgs([]string{"exec", "jira_get_projects"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("exec error: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), `"key": "LIVE"`) {
		t.Errorf("output missing project:\n%s", out.String())
	}
	if !strings.Contains(errOut.String(), "/rest/api/3/project") {
		t.Errorf("request log not written to app stderr:\n%s", errOut.String())
	}
}

func TestSearchAndSchema(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.run("search", "label"); err != nil {
		t.Fatalf("search error: %v", err)
	}
	found := decode[[]catalog.Summary](t, ta.out.Bytes())
	if len(found) == 0 {
		t.Fatal("search returned nothing")
	}

	if err := ta.run("schema", "jira_get_issue"); err != nil {
		t.Fatalf("schema error: %v", err)
	}
	info := decode[map[string]any](t, ta.out.Bytes())
	if info["name"] != "jira_get_issue" || info["input_schema"] == nil {
		t.Errorf("info = %v", info)
	}

	if err := ta.run("schema", "jira_nope"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestExec(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.run("exec", "jira_get_projects"); err != nil {
		t.Fatalf("exec error: %v\n%s", err, ta.out.String())
	}
	env := decode[map[string]any](t, ta.out.Bytes())
	if env["execution_success"] != true {
		t.Fatalf("envelope = %v", env)
	}
	if !strings.Contains(ta.out.String(), `"key": "PROJ"`) {
		t.Errorf("output missing project:\n%s", ta.out.String())
	}

	if err := ta.run("loaded"); err != nil {
		t.Fatal(err)
	}
	if loaded := decode[[]string](t, ta.out.Bytes()); len(loaded) != 1 || loaded[0] != "jira_get_projects" {
		t.Errorf("loaded = %v", loaded)
	}
}

func TestExecFailures(t *testing.T) {
	ta := newTestApp(t)

	tests := []struct {
		name string
		args []string
		kind string
	}{
		{"invalid json", []string{"exec", "jira_get_issue", "--input", "{bad"}, "validation_failure"},
		{"missing field", []string{"exec", "jira_get_issue", "--input", "{}"}, "validation_failure"},
		{"unknown tool", []string{"exec", "jira_nope"}, "unknown_tool"},
		{"unconfigured", []string{"exec", "confluence_get_page", "--input", `{"page_id":"1"}`}, "load_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ta.run(tt.args...)
			if !errors.Is(err, errFailed) {
				t.Fatalf("err = %v, want errFailed", err)
			}
			env := decode[map[string]any](t, ta.out.Bytes())
			if env["execution_success"] != false || env["error_kind"] != tt.kind {
				t.Errorf("envelope = %v", env)
			}
		})
	}

	// The executor succeeded but the remote call did not.
	err := ta.run("exec", "jira_get_issue", "--input", `{"issue_key":"GONE-1"}`)
	if !errors.Is(err, errFailed) {
		t.Fatalf("err = %v, want errFailed", err)
	}
	env := decode[map[string]any](t, ta.out.Bytes())
	if env["execution_success"] != true {
		t.Errorf("envelope = %v", env)
	}
	if !strings.Contains(ta.out.String(), "Issue GONE-1 not found") {
		t.Errorf("output = %s", ta.out.String())
	}
}

func TestValidate(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.run("validate", "jira_get_issue", "--input", `{"issue_key":"PROJ-1"}`); err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if v := decode[map[string]any](t, ta.out.Bytes()); v["valid"] != true {
		t.Errorf("verdict = %v", v)
	}

	if err := ta.run("validate", "jira_get_issue", "--input", `{"issue_key":""}`); !errors.Is(err, errFailed) {
		t.Fatalf("err = %v, want errFailed", err)
	}
	if v := decode[map[string]any](t, ta.out.Bytes()); v["valid"] != false || v["error"] == "" {
		t.Errorf("verdict = %v", v)
	}
}

func TestParseInput(t *testing.T) {
	if got, err := parseInput(""); err != nil || len(got) != 0 {
		t.Errorf("parseInput(\"\") = %v, %v", got, err)
	}
	if _, err := parseInput("null"); err == nil {
		t.Error("expected error for null input")
	}
	if _, err := parseInput("[1]"); err == nil {
		t.Error("expected error for array input")
	}
	got, err := parseInput(`{"a":1}`)
	if err != nil || got["a"] != float64(1) {
		t.Errorf("parseInput = %v, %v", got, err)
	}
}

func TestAgent_SingleMessage(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.run("agent", "-m", "hello"); err != nil {
		t.Fatalf("agent error: %v", err)
	}
	if !strings.Contains(ta.out.String(), "echo: hello") {
		t.Errorf("output = %q", ta.out.String())
	}
	if !ta.rt.closed {
		t.Error("runtime should be closed")
	}
}

func TestAgent_REPL(t *testing.T) {
	ta := newTestApp(t)
	ta.stdin = strings.NewReader("first\n\nexit\nignored\n")

	if err := ta.run("agent"); err != nil {
		t.Fatalf("agent error: %v", err)
	}
	if len(ta.rt.prompts) != 1 || ta.rt.prompts[0] != "first" {
		t.Errorf("prompts = %v", ta.rt.prompts)
	}
}

func TestAgent_FactoryError(t *testing.T) {
	ta := newTestApp(t)
	ta.runtimeFactory = func(*config.Config, *catalog.Catalog, zerolog.Logger) (agent.Runtime, error) {
		return nil, agent.ErrNoAPIKey
	}
	if err := ta.run("agent", "-m", "hi"); !errors.Is(err, agent.ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestSchedule(t *testing.T) {
	ta := newTestApp(t)

	err := ta.run("schedule", "add", "--name", "projects", "--tool", "jira_get_projects", "--every", "1h")
	if err != nil {
		t.Fatalf("schedule add error: %v", err)
	}
	job := decode[cron.CronJob](t, ta.out.Bytes())
	if job.ID == "" || job.Schedule.Kind != cron.KindEvery || job.Schedule.EveryMs != time.Hour.Milliseconds() {
		t.Fatalf("job = %+v", job)
	}

	if err := ta.run("schedule", "list"); err != nil {
		t.Fatal(err)
	}
	if jobs := decode[[]cron.CronJob](t, ta.out.Bytes()); len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}

	if err := ta.run("schedule", "run", job.ID); err != nil {
		t.Fatalf("schedule run error: %v", err)
	}
	if !strings.Contains(ta.out.String(), "PROJ") {
		t.Errorf("run output = %s", ta.out.String())
	}

	if err := ta.run("schedule", "list"); err != nil {
		t.Fatal(err)
	}
	jobs := decode[[]cron.CronJob](t, ta.out.Bytes())
	if jobs[0].State.LastStatus != cron.StatusOK {
		t.Errorf("state = %+v", jobs[0].State)
	}

	if err := ta.run("schedule", "remove", job.ID); err != nil {
		t.Fatal(err)
	}
	if err := ta.run("schedule", "remove", job.ID); err == nil {
		t.Error("expected error removing a missing job")
	}
}

func TestScheduleAdd_Rejects(t *testing.T) {
	ta := newTestApp(t)

	cases := [][]string{
		{"schedule", "add", "--tool", "jira_get_projects"},
		{"schedule", "add", "--tool", "jira_get_projects", "--cron", "bogus"},
		{"schedule", "add", "--tool", "jira_get_projects", "--cron", "@daily", "--every", "1h"},
		{"schedule", "add", "--tool", "jira_get_issue", "--every", "1h"},
		{"schedule", "add", "--tool", "jira_nope", "--every", "1h"},
		{"schedule", "add", "--tool", "jira_get_projects", "--at", "tomorrow"},
	}
	for _, args := range cases {
		if err := ta.run(args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := parseSchedule("", 0, "2030-01-02T03:04:05Z")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	if s.Kind != cron.KindAt || s.AtMs != want {
		t.Errorf("schedule = %+v", s)
	}

	if _, err := parseSchedule("", 10*time.Millisecond, ""); err == nil {
		t.Error("expected error for short interval")
	}
	if _, err := parseSchedule("", 0, ""); err == nil {
		t.Error("expected error for empty schedule")
	}
}

func TestSkillWriteAndShow(t *testing.T) {
	ta := newTestApp(t)
	dir := t.TempDir()

	if err := ta.run("skill", "write", "--dir", dir); err != nil {
		t.Fatalf("skill write error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "atlassian-jira", "SKILL.md")); err != nil {
		t.Errorf("jira skill not written: %v", err)
	}

	if err := ta.run("skill", "show", "confluence"); err != nil {
		t.Fatalf("skill show error: %v", err)
	}
	if !strings.HasPrefix(ta.out.String(), "---\nname: atlassian-confluence\n") {
		t.Errorf("show output = %q", ta.out.String())
	}

	if err := ta.run("skill", "show", "bamboo"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestOnboard(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	ta := newTestApp(t)

	if err := ta.run("onboard"); err != nil {
		t.Fatalf("onboard error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".atlastools", "config.json")); err != nil {
		t.Errorf("config not created: %v", err)
	}
	ws := ta.cfg.Agent.Workspace
	if _, err := os.Stat(filepath.Join(ws, "AGENTS.md")); err != nil {
		t.Errorf("AGENTS.md not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "skills", "atlassian-skills", "SKILL.md")); err != nil {
		t.Errorf("skills not written: %v", err)
	}

	if err := ta.run("onboard"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ta.out.String(), "Config already exists") {
		t.Errorf("second onboard output = %s", ta.out.String())
	}
}

func TestStatus(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ta := newTestApp(t)

	if err := ta.run("status", "--check"); err != nil {
		t.Fatalf("status error: %v\n%s", err, ta.out.String())
	}
	out := ta.out.String()
	for _, want := range []string{
		"Jira: http",
		"Confluence: not configured (CONFLUENCE_URL environment variable is required)",
		"API Key: not set",
		"Scheduled jobs: 0",
		"Jira check: authenticated as Ada",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":                 "not set",
		"short":            "set",
		"sk-ant-123456789": "sk-a...6789",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
