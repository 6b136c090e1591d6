package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fishy/errbatch"
	"github.com/spf13/pflag"

	"github.com/conorfennell/qaforum/internal/config"
	"github.com/conorfennell/qaforum/internal/domain"
	"github.com/conorfennell/qaforum/internal/forum"
	"github.com/conorfennell/qaforum/internal/importer"
	"github.com/conorfennell/qaforum/internal/kv"
	"github.com/conorfennell/qaforum/internal/session"
	"github.com/conorfennell/qaforum/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("qaforum failed", "error", err)
		os.Exit(1)
	}
}

type command struct {
	usage string
	// loggedIn commands fail unless a user is logged in.
	loggedIn bool
	run      func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"serve":           {usage: "serve", run: serve},
	"import":          {usage: "import <dir|git-url>...", run: runImport},
	"signup":          {usage: "signup <username> <password>", run: signup},
	"login":           {usage: "login <username> <password>", run: login},
	"logout":          {usage: "logout", run: logout},
	"whoami":          {usage: "whoami", run: whoami},
	"users":           {usage: "users", run: listUsers},
	"list":            {usage: "list", run: list},
	"ask":             {usage: "ask <content>", loggedIn: true, run: ask},
	"answer":          {usage: "answer <question-id> <content>", loggedIn: true, run: answer},
	"delete-question": {usage: "delete-question <question-id>", loggedIn: true, run: deleteQuestion},
	"delete-answer":   {usage: "delete-answer <question-id> <answer-id>", loggedIn: true, run: deleteAnswer},
}

// app is what every command runs against.
type app struct {
	cfg    config.Config
	area   kv.Store
	forum  *forum.Forum
	keeper *session.Keeper
	user   *domain.SessionMarker
	out    io.Writer
}

func (a *app) Close() error {
	var batch errbatch.ErrBatch
	batch.Add(a.forum.Close())
	batch.Add(a.area.Close())
	return batch.Compile()
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("no command given")
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		printUsage(out)
		return fmt.Errorf("unknown command %q", name)
	}

	fs := pflag.NewFlagSet("qaforum "+name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: qaforum %s [flags]\n\nFlags:\n", cmd.usage)
		fs.PrintDefaults()
	}
	config.RegisterFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log)

	area, err := kv.Open(ctx, kv.Options{
		Backend: cfg.KV.Backend,
		Path:    cfg.KV.Path,
		Redis: kv.RedisOptions{
			Addr:     cfg.KV.Redis.Addr,
			Password: cfg.KV.Redis.Password,
			DB:       cfg.KV.Redis.DB,
			Prefix:   cfg.KV.Redis.Prefix,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open kv area: %w", err)
	}

	a := &app{
		cfg:    cfg,
		area:   area,
		forum:  forum.Open(ctx, area, cfg.Remote),
		keeper: session.NewKeeper(area),
		out:    out,
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Error closing stores", "error", err)
		}
	}()

	a.user, err = a.keeper.Current(ctx)
	if err != nil {
		return err
	}
	if cmd.loggedIn && a.user == nil {
		return errors.New("not logged in; run qaforum login first")
	}
	return cmd.run(ctx, a, fs.Args())
}

func printUsage(out io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "Usage: qaforum <command> [flags]\n\nCommands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", commands[name].usage)
	}
}

func setupLogger(cfg config.Log) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serve(ctx context.Context, a *app, _ []string) error {
	if a.cfg.Session.Secret == config.DefaultSessionSecret {
		slog.Warn("Using the default session secret; set QAFORUM_SESSION__SECRET outside development")
	}
	tokens := session.NewTokens(a.cfg.Session.Secret, a.cfg.Session.TTL)
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           web.NewServer(a.forum, tokens, a.cfg.CORS.Origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", a.cfg.Addr, "backend", a.forum.Backend())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: qaforum import <dir|git-url>...")
	}
	im := importer.New(a.forum, a.cfg.Import.Author, a.cfg.Import.ReposDir)
	report, err := im.Run(ctx, args)
	fmt.Fprintf(a.out, "Imported %d questions and %d answers from %d files, %d skipped.\n",
		report.Questions, report.Answers, report.Files, report.Skipped)
	return err
}

func signup(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qaforum signup <username> <password>")
	}
	in := forum.Signup{Username: args[0], Password: args[1], Confirm: args[1]}
	if err := forum.ValidateSignup(&in); err != nil {
		return err
	}
	u, err := a.forum.AddUser(ctx, in.Username, in.Password)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.ErrUsernameTaken
	}
	if err := a.keeper.Login(ctx, u.Marker()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed up and logged in as %s.\n", u.Username)
	return nil
}

func login(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qaforum login <username> <password>")
	}
	u, err := a.forum.Authenticate(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if u == nil {
		return errors.New("invalid username or password")
	}
	if err := a.keeper.Login(ctx, u.Marker()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", u.Username)
	return nil
}

func logout(ctx context.Context, a *app, _ []string) error {
	if err := a.keeper.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func whoami(_ context.Context, a *app, _ []string) error {
	if a.user == nil {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(a.out, "%s (id %d)\n", a.user.Username, a.user.ID)
	return nil
}

func listUsers(ctx context.Context, a *app, _ []string) error {
	users, err := a.forum.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(a.out, "%d\t%s\n", u.ID, u.Username)
	}
	return nil
}

func list(ctx context.Context, a *app, _ []string) error {
	questions, err := a.forum.Questions(ctx)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		fmt.Fprintln(a.out, "No questions yet.")
		return nil
	}
	for _, q := range questions {
		fmt.Fprintf(a.out, "#%d %s (%s, %s)\n", q.ID, q.Content, q.Author, q.Date)
		for _, ans := range q.Answers {
			fmt.Fprintf(a.out, "    #%d %s (%s, %s)\n", ans.ID, ans.Content, ans.Author, ans.Date)
		}
	}
	return nil
}

func ask(ctx context.Context, a *app, args []string) error {
	q, err := a.forum.Ask(ctx, a.user.Username, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Posted question #%d.\n", q.ID)
	return nil
}

func answer(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: qaforum answer <question-id> <content>")
	}
	questionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	ans, err := a.forum.Reply(ctx, questionID, a.user.Username, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if ans == nil {
		return fmt.Errorf("question #%d not found", questionID)
	}
	fmt.Fprintf(a.out, "Posted answer #%d to question #%d.\n", ans.ID, questionID)
	return nil
}

func deleteQuestion(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: qaforum delete-question <question-id>")
	}
	questionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	q, err := a.forum.Question(ctx, questionID)
	if err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("question #%d not found", questionID)
	}
	if !forum.CanDelete(a.user.Username, q.Author) {
		return fmt.Errorf("only %s or %s can delete question #%d", q.Author, domain.AdminUsername, questionID)
	}
	deleted, err := a.forum.DeleteQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("question #%d not found", questionID)
	}
	fmt.Fprintf(a.out, "Deleted question #%d.\n", questionID)
	return nil
}

func deleteAnswer(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qaforum delete-answer <question-id> <answer-id>")
	}
	questionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	answerID, err := parseID(args[1])
	if err != nil {
		return err
	}
	q, err := a.forum.Question(ctx, questionID)
	if err != nil {
		return err
	}
	var target *domain.Answer
	if q != nil {
		for i := range q.Answers {
			if q.Answers[i].ID == answerID {
				target = &q.Answers[i]
			}
		}
	}
	if target == nil {
		return fmt.Errorf("answer #%d not found under question #%d", answerID, questionID)
	}
	if !forum.CanDelete(a.user.Username, target.Author) {
		return fmt.Errorf("only %s or %s can delete answer #%d", target.Author, domain.AdminUsername, answerID)
	}
	deleted, err := a.forum.DeleteAnswer(ctx, questionID, answerID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("answer #%d not found under question #%d", answerID, questionID)
	}
	fmt.Fprintf(a.out, "Deleted answer #%d.\n", answerID)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
