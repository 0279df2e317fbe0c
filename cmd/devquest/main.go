package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devquest/internal/app"
	"devquest/internal/config"
	"devquest/internal/db"
	"devquest/internal/domain"
	"devquest/internal/engine"
	"devquest/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "devquest",
	Short: "DevQuest CLI",
	Long: `DevQuest turns project work into a quest board.
- Clients (quest givers) propose projects and submit tasks.
- Managers (guild masters) accept projects, approve and assign tasks.
- Contributors (adventurers) move their tasks across the board; finishing one pays its XP and badges.
- Every change lands in the event log, view it with 'devquest log tail'.
Select who you act as with --as <email> or 'devquest login <email>'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DEVQUEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "act as this actor (email or id)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and devquest.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := config.Load(workspace); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			} else if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Printf("Workspace ready at %s\n", db.Path(workspace))
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo roster, projects and tasks into an empty workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := app.Seed(ctx, e)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Skipped {
					fmt.Println("Workspace already has actors; nothing seeded")
					return nil
				}
				fmt.Printf("Seeded %d actors, %d projects, %d tasks\n", res.Actors, res.Projects, res.Tasks)
				return nil
			})
		},
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage actors"}
	u.AddCommand(userRegisterCmd())
	u.AddCommand(userListCmd())
	u.AddCommand(userProfileCmd())
	return u
}

func userRegisterCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RegisterActor(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Registered %s <%s> as %s (%s)\n", a.Name, a.Email, a.Role, a.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (min 6 characters)")
	cmd.Flags().StringVar(&opts.Role, "role", "contributor", "one of "+choices(domain.Roles))
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actors, err := e.ListActors(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(actors)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "XP", "Level"})
				for _, a := range actors {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Email, a.Role, a.XP, domain.LevelFor(a.XP)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter ("+choices(domain.Roles)+")")
	return cmd
}

func userProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile [email|id]",
		Short: "Show an actor's level progress (defaults to the current actor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ref := viper.GetString("as")
				if len(args) == 1 {
					ref = args[0]
				}
				a, err := resolveActor(ctx, e, ref)
				if err != nil {
					return err
				}
				p, err := e.Profile(ctx, a.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s <%s> %s\n", p.Actor.Name, p.Actor.Email, p.Actor.Role)
				fmt.Printf("Level %d  %d XP  (%d/%d, %d to next)\n", p.Level, p.Actor.XP, p.LevelXP, domain.XPPerLevel, p.XPToNext)
				fmt.Printf("Tasks done %d, active %d\n", p.TasksDone, p.TasksActive)
				if len(p.Actor.Badges) > 0 {
					fmt.Printf("Badges: %s\n", strings.Join(p.Actor.Badges, ", "))
				}
				return nil
			})
		},
	}
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Check credentials and act as this actor in this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Authenticate(ctx, args[0], password)
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				if err := setEnvValue(filepath.Join(workspace, ".env"), "DEVQUEST_AS", a.Email); err != nil {
					return err
				}
				fmt.Printf("Logged in as %s (%s); set DEVQUEST_AS in %s/.env\n", a.Email, a.Role, workspace)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectProposeCmd())
	prj.AddCommand(projectAcceptCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectProposeCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a project (clients)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.ProposeProject(ctx, actor, title, description)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a project and become its manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.AcceptProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a managed project (" + choices(domain.ProjectStatuses) + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				p, err := e.UpdateProjectStatus(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ProjectsWithMetrics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Client", "Manager", "Tasks", "Progress"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, summaryName(p.Client), summaryName(p.Manager), p.Metrics.Total, fmt.Sprintf("%d%%", p.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskSubmitCmd())
	task.AddCommand(taskApproveCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskPendingCmd())
	task.AddCommand(taskSubmittedCmd())
	return task
}

func taskSubmitCmd() *cobra.Command {
	var opts engine.SubmitTaskOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a task to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.SubmitTask(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().IntVar(&opts.XP, "xp", 0, "xp reward (0 uses the configured default)")
	cmd.Flags().StringArrayVar(&opts.Badges, "badge", []string{}, "badge reward (repeatable)")
	cmd.Flags().StringVar(&opts.AssigneeEmail, "assignee", "", "assignee email")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskApproveCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.ApproveTask(ctx, actor, args[0], assignee)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee email")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <email>",
		Short: "Assign a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.AssignTask(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task (" + choices(domain.TaskStatuses) + ")",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.AdvanceTaskStatus(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var f engine.TaskFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approved tasks on the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.AssigneeID != "" && strings.Contains(f.AssigneeID, "@") {
					a, err := e.ActorByEmail(ctx, f.AssigneeID)
					if err != nil {
						return err
					}
					f.AssigneeID = a.ID
				}
				tasks, err := e.Tasks(ctx, f)
				if err != nil {
					return err
				}
				return printTaskViews(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter ("+choices(domain.TaskStatuses)+")")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter (email or id)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max tasks")
	return cmd
}

func taskPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Tasks awaiting approval (managers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				tasks, err := e.PendingTasks(ctx, actor)
				if err != nil {
					return err
				}
				return printTaskViews(tasks)
			})
		},
	}
}

func taskSubmittedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submitted",
		Short: "Tasks you submitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				tasks, err := e.SubmittedTasks(ctx, actor)
				if err != nil {
					return err
				}
				return printTaskViews(tasks)
			})
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Top actors by XP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Name", "Role", "Level", "XP", "Badges"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.Rank, entry.Actor.Name, entry.Actor.Role, entry.Level, entry.Actor.XP, strings.Join(entry.Badges, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "entries to show (0 uses the configured default)")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				key, raw, err := e.CreateAPIKey(ctx, actor.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
				}
				fmt.Printf("API key %s for %s\n%s\nStore it now; it is not shown again.\n", key.ID, actor.Email, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	k.AddCommand(create)

	k.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the current actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				keys, err := e.APIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	k.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke one of the current actor's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				if err := e.RevokeAPIKey(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return k
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var q engine.EventQuery
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				evts, err := e.Events(ctx, actor, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&q.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&q.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&q.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&q.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("info")
			workspace := viper.GetString("workspace")
			e, err := app.Open(cmd.Context(), workspace, logger)
			if err != nil {
				return err
			}
			defer e.DB.Close()
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowActorHeader,
				Logger:           logger,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("DEVQUEST_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			server.StartWebhooks(ctx, e, logger)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", "addr", addr, "base_path", basePath, "webhooks", len(e.Config.Webhooks))
			fmt.Printf("Serving DevQuest API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (development only)")
	return cmd
}

// --- helpers ---

func newLogger(fallback string) *slog.Logger {
	level := viper.GetString("log-level")
	if !rootCmd.PersistentFlags().Changed("log-level") && fallback != "" {
		level = fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, err := app.Open(ctx, viper.GetString("workspace"), newLogger(""))
	if err != nil {
		return err
	}
	defer e.DB.Close()
	return fn(ctx, e)
}

func withActor(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		actor, err := resolveActor(ctx, e, viper.GetString("as"))
		if err != nil {
			return err
		}
		return fn(ctx, e, actor)
	})
}

// resolveActor looks up ref as an email when it contains "@", otherwise as an id.
func resolveActor(ctx context.Context, e engine.Engine, ref string) (domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Actor{}, fmt.Errorf("no actor selected; pass --as <email> or run devquest login <email>")
	}
	if strings.Contains(ref, "@") {
		return e.ActorByEmail(ctx, ref)
	}
	return e.Actor(ctx, ref)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

// choices renders enum values for help text.
func choices[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

func printProject(p domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("%s  %s  [%s]\n", p.ID, p.Title, p.Status)
	return nil
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	approval := "pending approval"
	if t.Approved {
		approval = "approved"
	}
	fmt.Printf("%s  %s  [%s, %s]  %d XP\n", t.ID, t.Title, t.Status, approval, t.XP)
	return nil
}

func printTaskViews(tasks []domain.TaskView) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Project", "Status", "XP", "Assignee", "Badges"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, t.ProjectTitle, t.Status, t.XP, summaryName(t.Assignee), strings.Join(t.Badges, ", ")})
	}
	tw.Render()
	return nil
}

func summaryName(s *domain.ActorSummary) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
