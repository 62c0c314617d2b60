package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/atlastools/internal/agent"
	"github.com/stellarlinkco/atlastools/internal/catalog"
	"github.com/stellarlinkco/atlastools/internal/config"
	"github.com/stellarlinkco/atlastools/internal/confluence"
	"github.com/stellarlinkco/atlastools/internal/cron"
	"github.com/stellarlinkco/atlastools/internal/jira"
	"github.com/stellarlinkco/atlastools/internal/logger"
	"github.com/stellarlinkco/atlastools/internal/mcpserver"
	"github.com/stellarlinkco/atlastools/internal/skills"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

var version = "dev"

// errFailed marks a command whose output already reports the failure.
var errFailed = errors.New("command failed")

// app carries the dependencies shared by every command. Tests swap the
// loaders and IO.
type app struct {
	loadConfig     func() (*config.Config, error)
	loadCatalog    func(cfg *config.Config, log zerolog.Logger) (*catalog.Catalog, error)
	runtimeFactory agent.RuntimeFactory

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log zerolog.Logger
	cat *catalog.Catalog
}

func newApp() *app {
	return &app{
		loadConfig:     config.LoadConfig,
		loadCatalog:    catalog.Default,
		runtimeFactory: agent.DefaultRuntimeFactory,
		stdin:          os.Stdin,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New(a.stderr, cfg.Log.Level)
	return cfg, nil
}

func (a *app) catalog() (*catalog.Catalog, error) {
	if a.cat != nil {
		return a.cat, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	cat, err := a.loadCatalog(cfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	a.cat = cat
	return cat, nil
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Fprintln(a.stdout, string(data))
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "atlastools",
		Short:         "atlastools - Jira and Confluence tools with schema-validated input",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		listCmd(a),
		searchCmd(a),
		schemaCmd(a),
		execCmd(a),
		validateCmd(a),
		loadedCmd(a),
		serveCmd(a),
		agentCmd(a),
		scheduleCmd(a),
		skillCmd(a),
		onboardCmd(a),
		statusCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newApp()).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// --- discovery ---

func listCmd(a *app) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			return a.printJSON(cat.ListTools(category))
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list tools in this category")
	return cmd
}

func searchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search tool names and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			return a.printJSON(cat.SearchTools(args[0]))
		},
	}
}

func schemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <tool>",
		Short: "Show a tool's input and output schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			info, err := cat.GetToolInfo(args[0])
			if err != nil {
				return err
			}
			return a.printJSON(info)
		},
	}
}

func loadedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "loaded",
		Short: "List tools loaded in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			loaded := cat.Loaded()
			if loaded == nil {
				loaded = []string{}
			}
			return a.printJSON(loaded)
		},
	}
}

// --- execution ---

func execCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "exec <tool>",
		Short: "Execute a tool with JSON input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			name := args[0]
			params, err := parseInput(input)
			if err != nil {
				_ = a.printJSON(tool.Execution{
					ToolName: name,
					Error:    err.Error(),
					Kind:     tool.KindValidationFailure,
				})
				return errFailed
			}

			exec := cat.ExecuteTool(cmd.Context(), name, params)
			if err := a.printJSON(exec); err != nil {
				return err
			}
			if !exec.Succeeded() {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "{}", "Tool input as a JSON object")
	return cmd
}

func validateCmd(a *app) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "validate <tool>",
		Short: "Check JSON input against a tool's schema without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			type verdict struct {
				Tool  string `json:"tool"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}
			out := verdict{Tool: args[0], Valid: true}
			params, err := parseInput(input)
			if err == nil {
				err = cat.ValidateInput(args[0], params)
			}
			if err != nil {
				out.Valid = false
				out.Error = err.Error()
			}
			if perr := a.printJSON(out); perr != nil {
				return perr
			}
			if !out.Valid {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "{}", "Tool input as a JSON object")
	return cmd
}

// parseInput decodes a JSON object. Empty input means no arguments.
func parseInput(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}
	if params == nil {
		return nil, errors.New("invalid JSON input: expected an object")
	}
	return params, nil
}

// --- servers ---

func serveCmd(a *app) *cobra.Command {
	var withSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every tool over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if withSchedule {
				svc := a.scheduler(cat)
				if err := svc.Start(ctx); err != nil {
					return fmt.Errorf("start schedule: %w", err)
				}
				defer svc.Stop()
			}
			a.log.Info().Str("version", version).Int("tools", len(cat.ListTools(""))).Msg("serving MCP on stdio")
			return mcpserver.Serve(ctx, cat, version, a.log)
		},
	}
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "Also run scheduled jobs")
	return cmd
}

func agentCmd(a *app) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent in single message or REPL mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			rt, err := a.runtimeFactory(a.cfg, cat, a.log)
			if err != nil {
				return err
			}
			defer rt.Close()

			if message != "" {
				return agent.Ask(cmd.Context(), rt, message, a.stdout)
			}
			agent.REPL(cmd.Context(), rt, a.stdin, a.stdout, a.stderr)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Single message to send")
	return cmd
}

// --- schedule ---

func (a *app) scheduler(cat *catalog.Catalog) *cron.Service {
	svc := cron.NewService(a.cfg.Schedule.StorePath, a.log)
	svc.OnJob = cron.ToolRunner(cat)
	return svc
}

func scheduleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled tool runs",
	}
	cmd.AddCommand(scheduleAddCmd(a), scheduleListCmd(a), scheduleRemoveCmd(a), scheduleRunCmd(a), scheduleStartCmd(a))
	return cmd
}

func scheduleAddCmd(a *app) *cobra.Command {
	var (
		name, toolName, input, expr, at string
		every                           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a tool run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			schedule, err := parseSchedule(expr, every, at)
			if err != nil {
				return err
			}
			params, err := parseInput(input)
			if err != nil {
				return err
			}
			if err := cat.ValidateInput(toolName, params); err != nil {
				return err
			}
			if name == "" {
				name = toolName
			}
			job, err := a.scheduler(cat).AddJob(name, schedule, cron.Payload{Tool: toolName, Input: params})
			if err != nil {
				return err
			}
			return a.printJSON(job)
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "Job name (defaults to the tool name)")
	f.StringVar(&toolName, "tool", "", "Tool to run")
	f.StringVarP(&input, "input", "i", "{}", "Tool input as a JSON object")
	f.StringVar(&expr, "cron", "", "Cron expression, e.g. '0 9 * * MON-FRI'")
	f.DurationVar(&every, "every", 0, "Run at a fixed interval, e.g. 15m")
	f.StringVar(&at, "at", "", "Run once at an RFC 3339 time")
	_ = cmd.MarkFlagRequired("tool")
	cmd.MarkFlagsMutuallyExclusive("cron", "every", "at")
	cmd.MarkFlagsOneRequired("cron", "every", "at")
	return cmd
}

func parseSchedule(expr string, every time.Duration, at string) (cron.Schedule, error) {
	var s cron.Schedule
	switch {
	case expr != "":
		s = cron.Schedule{Kind: cron.KindCron, Expr: expr}
	case every > 0:
		s = cron.Schedule{Kind: cron.KindEvery, EveryMs: every.Milliseconds()}
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return s, fmt.Errorf("invalid --at time: %w", err)
		}
		s = cron.Schedule{Kind: cron.KindAt, AtMs: t.UnixMilli()}
	default:
		return s, errors.New("one of --cron, --every or --at is required")
	}
	return s, s.Validate()
}

func scheduleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			jobs, err := a.scheduler(cat).ListJobs()
			if err != nil {
				return err
			}
			if jobs == nil {
				jobs = []cron.CronJob{}
			}
			return a.printJSON(jobs)
		},
	}
}

func scheduleRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			removed, err := a.scheduler(cat).RemoveJob(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(a.stdout, "Removed job %s\n", args[0])
			return nil
		},
	}
}

func scheduleRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a scheduled job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			out, err := a.scheduler(cat).RunJob(cmd.Context(), args[0])
			if out != "" {
				var v any
				if json.Unmarshal([]byte(out), &v) == nil {
					_ = a.printJSON(v)
				} else {
					fmt.Fprintln(a.stdout, out)
				}
			}
			if err != nil {
				if out != "" {
					return errFailed
				}
				return err
			}
			return nil
		},
	}
}

func scheduleStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			svc := a.scheduler(cat)
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			svc.Stop()
			return nil
		},
	}
}

// --- skills ---

func skillCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Generate agent skills describing the tools",
	}

	var dir string
	write := &cobra.Command{
		Use:   "write",
		Short: "Write SKILL.md files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join(a.cfg.Agent.Workspace, "skills")
			}
			paths, err := skills.Write(dir, cat)
			for _, p := range paths {
				fmt.Fprintf(a.stdout, "Wrote %s\n", p)
			}
			return err
		},
	}
	write.Flags().StringVar(&dir, "dir", "", "Skills directory (defaults to <workspace>/skills)")

	show := &cobra.Command{
		Use:   "show [category]",
		Short: "Print the SKILL.md for a category, or the combined skill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			want := skills.AllToolsSkill
			if len(args) == 1 {
				want = skills.SkillName(args[0])
			}
			for _, s := range skills.Build(cat) {
				if s.Name != want {
					continue
				}
				data, err := skills.Render(s)
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(data)
				return err
			}
			return fmt.Errorf("no skill named %q", want)
		},
	}

	cmd.AddCommand(write, show)
	return cmd
}

// --- setup ---

func onboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Initialize config, workspace and skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ConfigPath()
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := config.SaveConfig(config.DefaultConfig()); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(a.stdout, "Created config: %s\n", cfgPath)
			} else {
				fmt.Fprintf(a.stdout, "Config already exists: %s\n", cfgPath)
			}

			cat, err := a.catalog()
			if err != nil {
				return err
			}
			ws := a.cfg.Agent.Workspace
			if err := os.MkdirAll(ws, 0o755); err != nil {
				return fmt.Errorf("create workspace: %w", err)
			}
			a.writeIfNotExists(filepath.Join(ws, "AGENTS.md"), agent.DefaultPrompt)
			if _, err := skills.Write(filepath.Join(ws, "skills"), cat); err != nil {
				return fmt.Errorf("write skills: %w", err)
			}

			fmt.Fprintf(a.stdout, "Workspace ready: %s\n", ws)
			fmt.Fprintln(a.stdout, "\nNext steps:")
			fmt.Fprintf(a.stdout, "  1. Edit %s or set JIRA_URL, JIRA_USERNAME, JIRA_API_TOKEN (and CONFLUENCE_*)\n", cfgPath)
			fmt.Fprintln(a.stdout, "  2. Run 'atlastools status --check' to verify credentials")
			fmt.Fprintln(a.stdout, "  3. Run 'atlastools exec jira_get_projects' to test")
			return nil
		},
	}
}

func (a *app) writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0o644)
		fmt.Fprintf(a.stdout, "  Created: %s\n", path)
	}
}

func statusCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and, with --check, verify credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				fmt.Fprintf(a.stdout, "Config: error (%v)\n", err)
				return nil
			}

			fmt.Fprintf(a.stdout, "Config: %s\n", config.ConfigPath())
			fmt.Fprintf(a.stdout, "Workspace: %s\n", cfg.Agent.Workspace)
			fmt.Fprintf(a.stdout, "Jira: %s\n", siteDisplay(cfg.Jira, "JIRA"))
			fmt.Fprintf(a.stdout, "Confluence: %s\n", siteDisplay(cfg.Confluence, "CONFLUENCE"))
			fmt.Fprintf(a.stdout, "Model: %s (%s)\n", cfg.Agent.Model, providerDisplay(cfg.Provider.Type))
			fmt.Fprintf(a.stdout, "API Key: %s\n", maskKey(cfg.Provider.APIKey))

			if cat, err := a.catalog(); err == nil {
				if jobs, err := a.scheduler(cat).ListJobs(); err == nil {
					fmt.Fprintf(a.stdout, "Scheduled jobs: %d\n", len(jobs))
				}
			}

			if !check {
				return nil
			}
			ok := true
			if cfg.Jira.Configured() {
				ok = a.checkSite(cmd.Context(), "Jira", func(ctx context.Context) (string, error) {
					svc, err := jira.LazyProvider(cfg.Jira, a.log)()
					if err != nil {
						return "", err
					}
					return svc.Myself(ctx)
				}) && ok
			}
			if cfg.Confluence.Configured() {
				ok = a.checkSite(cmd.Context(), "Confluence", func(ctx context.Context) (string, error) {
					svc, err := confluence.LazyProvider(cfg.Confluence, a.log)()
					if err != nil {
						return "", err
					}
					return svc.CurrentUser(ctx)
				}) && ok
			}
			if !ok {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Call each configured site to verify credentials")
	return cmd
}

func (a *app) checkSite(ctx context.Context, label string, whoami func(context.Context) (string, error)) bool {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	user, err := whoami(ctx)
	if err != nil {
		fmt.Fprintf(a.stdout, "%s check: failed (%v)\n", label, err)
		return false
	}
	fmt.Fprintf(a.stdout, "%s check: authenticated as %s\n", label, user)
	return true
}

func siteDisplay(c config.AtlassianConfig, prefix string) string {
	if err := c.Validate(prefix); err != nil {
		return "not configured (" + err.Error() + ")"
	}
	return c.URL + " as " + c.Username
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
