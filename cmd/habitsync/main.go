package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/gateway"
	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/habitsync"
	"github.com/AryanShah2000/HabitTracker/internal/localstore"
	"github.com/AryanShah2000/HabitTracker/internal/session"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(envOrDefault("HABITSYNC_LOG_LEVEL", "warning")); err == nil {
		log.SetLevel(level)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	app, err := newApp()
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	ctx := context.Background()
	switch command {
	case "login":
		err = app.runLogin(ctx, args)
	case "logout":
		err = app.session.Store("")
	case "log":
		err = app.runLog(ctx, args)
	case "quick-add":
		err = app.runQuickAdd(ctx, args)
	case "edit":
		err = app.runEdit(ctx, args)
	case "delete":
		err = app.runDelete(ctx, args)
	case "list":
		err = app.runList(args)
	case "progress":
		err = app.runProgress(args)
	case "calendar":
		err = app.runCalendar(args)
	case "sync":
		err = app.runSync(ctx)
	case "watch":
		err = app.runWatch(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: habitsync <command> [flags]

commands:
  login      authenticate against the server and store the session token
  logout     discard the stored session token
  log        record an activity (-goal, -amount, -date, -note)
  quick-add  record an activity for today: quick-add <goal> <amount> [note]
  edit       update a recorded activity (-id plus changed fields)
  delete     remove a recorded activity (-id)
  list       show recorded activities (-date to filter)
  progress   show per-goal progress for a day (-date)
  calendar   show goal achievement for a month (-month YYYY-MM)
  sync       reconcile local data with the server once
  watch      run resident, resyncing on connectivity and remote changes`)
}

type app struct {
	dataDir   string
	serverURL string
	session   *session.FileProvider
	store     *localstore.Store
	catalog   habit.Catalog
	remote    *gateway.Client
	engine    *habitsync.Engine
}

func newApp() (*app, error) {
	dataDir := strings.TrimSpace(os.Getenv("HABITSYNC_DATA_DIR"))
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data directory: %w", err)
		}
		dataDir = filepath.Join(home, ".habitsync")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	catalog := habit.DefaultCatalog()
	if path := strings.TrimSpace(os.Getenv("HABITSYNC_CATALOG_FILE")); path != "" {
		loaded, err := habit.LoadCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("load goal catalog: %w", err)
		}
		catalog = loaded
	}

	serverURL := envOrDefault("HABITSYNC_SERVER_URL", "http://127.0.0.1:8080")
	sess := session.NewFileProvider(filepath.Join(dataDir, "token"))
	store := localstore.New(filepath.Join(dataDir, "habits.json"), log.StandardLogger())
	remote := gateway.New(gateway.Options{
		BaseURL: serverURL,
		Session: sess,
		Catalog: catalog,
		Logger:  log.StandardLogger(),
	})
	engine, err := habitsync.New(habitsync.Options{
		Store:   store,
		Gateway: remote,
		Catalog: catalog,
		Logger:  log.StandardLogger(),
	})
	if err != nil {
		return nil, err
	}
	return &app{
		dataDir:   dataDir,
		serverURL: serverURL,
		session:   sess,
		store:     store,
		catalog:   catalog,
		remote:    remote,
		engine:    engine,
	}, nil
}

func (a *app) runLogin(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	username := flags.String("user", "", "username")
	password := flags.String("password", "", "password")
	signup := flags.Bool("signup", false, "create the account instead of logging in")
	flags.Parse(args)
	if *username == "" || *password == "" {
		return fmt.Errorf("-user and -password are required")
	}

	action := "login"
	if *signup {
		action = "signup"
	}
	body, err := json.Marshal(map[string]string{
		"action":   action,
		"username": *username,
		"password": *password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serverURL+"/api/auth", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if !result.Success || result.Token == "" {
		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}
		return fmt.Errorf("authentication failed (status %d)", resp.StatusCode)
	}
	if err := a.session.Store(result.Token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	fmt.Printf("logged in as %s\n", *username)
	return nil
}

func (a *app) runLog(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("log", flag.ExitOnError)
	goal := flags.String("goal", "", "goal to log against")
	amount := flags.Float64("amount", 0, "amount to record")
	date := flags.String("date", today(), "date in YYYY-MM-DD form")
	note := flags.String("note", "", "optional description")
	flags.Parse(args)

	a.engine.Start(ctx)
	event, err := a.engine.Log(ctx, habit.ActivityEvent{
		Goal:        *goal,
		Date:        *date,
		Amount:      *amount,
		Description: *note,
	})
	if err != nil {
		return err
	}
	a.printEvent(event)
	return nil
}

func (a *app) runQuickAdd(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: quick-add <goal> <amount> [note]")
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	note := ""
	if len(args) > 2 {
		note = strings.Join(args[2:], " ")
	}

	a.engine.Start(ctx)
	event, err := a.engine.Log(ctx, habit.ActivityEvent{
		Goal:        args[0],
		Date:        today(),
		Amount:      amount,
		Description: note,
	})
	if err != nil {
		return err
	}
	a.printEvent(event)
	return nil
}

func (a *app) runEdit(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("edit", flag.ExitOnError)
	id := flags.String("id", "", "identifier of the activity to edit")
	goal := flags.String("goal", "", "new goal")
	amount := flags.Float64("amount", -1, "new amount")
	date := flags.String("date", "", "new date")
	note := flags.String("note", "", "new description")
	noteSet := flags.Bool("clear-note", false, "remove the description")
	flags.Parse(args)
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	a.engine.Start(ctx)
	current, ok := a.store.Get(*id)
	if !ok {
		return &habit.NotFoundError{ID: *id}
	}
	updated := current
	if *goal != "" {
		updated.Goal = *goal
	}
	if *amount >= 0 {
		updated.Amount = *amount
	}
	if *date != "" {
		updated.Date = *date
	}
	if *note != "" {
		updated.Description = *note
	}
	if *noteSet {
		updated.Description = ""
	}
	event, err := a.engine.Update(ctx, *id, updated)
	if err != nil {
		return err
	}
	a.printEvent(event)
	return nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("delete", flag.ExitOnError)
	id := flags.String("id", "", "identifier of the activity to delete")
	flags.Parse(args)
	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	a.engine.Start(ctx)
	if err := a.engine.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", *id)
	return nil
}

func (a *app) runList(args []string) error {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	date := flags.String("date", "", "only show activities on this date")
	flags.Parse(args)

	events := habit.SortEvents(a.engine.Events())
	for _, event := range events {
		if *date != "" && event.Date != *date {
			continue
		}
		a.printEvent(event)
	}
	return nil
}

func (a *app) runProgress(args []string) error {
	flags := flag.NewFlagSet("progress", flag.ExitOnError)
	date := flags.String("date", today(), "date in YYYY-MM-DD form")
	flags.Parse(args)

	events := a.engine.Events()
	fmt.Printf("%s\n", *date)
	for _, key := range a.catalog.Keys() {
		goal, _ := a.catalog.Get(key)
		total := habit.DayTotal(events, key, *date)
		pct := habit.ProgressPct(events, a.catalog, key, *date)
		fmt.Printf("  %s %-10s %6.1f / %.0f %-6s %3.0f%% %s\n",
			goal.Glyph, goal.Name, total, goal.Target, goal.Unit, pct*100, habit.ProgressTier(pct))
	}
	achieved := habit.GoalsAchieved(events, a.catalog, *date)
	fmt.Printf("  goals achieved: %d/%d\n", achieved, a.catalog.Len())
	return nil
}

func (a *app) runCalendar(args []string) error {
	flags := flag.NewFlagSet("calendar", flag.ExitOnError)
	month := flags.String("month", time.Now().Format("2006-01"), "month in YYYY-MM form")
	flags.Parse(args)

	parsed, err := time.Parse("2006-01", *month)
	if err != nil {
		return fmt.Errorf("invalid month %q: %w", *month, err)
	}
	classes := habit.MonthClasses(a.engine.Events(), a.catalog, parsed.Year(), parsed.Month())
	dates := make([]string, 0, len(classes))
	for date := range classes {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		if classes[date] == habit.ClassNone {
			continue
		}
		fmt.Printf("  %s  %s\n", date, classes[date])
	}
	return nil
}

func (a *app) runSync(ctx context.Context) error {
	a.store.Load()
	if err := a.engine.SyncNow(ctx); err != nil {
		return err
	}
	fmt.Printf("sync complete, state=%s, %d activities\n", a.engine.State(), len(a.engine.Events()))
	return nil
}

// runWatch keeps the engine resident. Four triggers force a resync: the
// connectivity probe flipping, the slot file changing on disk, change
// notifications from the server, and the token file being rewritten by
// a login or logout in another invocation.
func (a *app) runWatch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.engine.Start(ctx)
	log.Infof("watching, state=%s", a.engine.State())

	a.watchSession(ctx)

	if err := a.store.Watch(ctx, func() {
		if err := a.engine.Resync(ctx, "slot-change"); err != nil {
			log.WithError(err).Warn("resync after slot change failed")
		}
	}); err != nil {
		return fmt.Errorf("watch slot file: %w", err)
	}

	notifier := &habitsync.Notifier{
		URL:     wsURL(a.serverURL) + "/api/habits/ws",
		Session: a.session,
		Logger:  log.StandardLogger(),
	}
	go notifier.Run(ctx, func() {
		if err := a.engine.Resync(ctx, "server-notify"); err != nil {
			log.WithError(err).Warn("resync after server notification failed")
		}
	})

	interval := durationEnv("HABITSYNC_PROBE_INTERVAL", 30*time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			a.session.Reload()
			online := a.remote.IsReachable(ctx)
			if err := a.engine.HandleConnectivity(ctx, online); err != nil {
				log.WithError(err).Debug("connectivity probe sync failed")
			}
		}
	}
}

// watchSession resyncs under the new credential when a login or logout
// rewrites the token file. Reload on the probe tick feeds it; Store from
// this process fires it directly.
func (a *app) watchSession(ctx context.Context) {
	a.session.OnChange(func() {
		if err := a.engine.Resync(ctx, "session-change"); err != nil {
			log.WithError(err).Warn("resync after session change failed")
		}
	})
}

func (a *app) printEvent(event habit.ActivityEvent) {
	glyph := ""
	if goal, ok := a.catalog.Get(event.Goal); ok {
		glyph = goal.Glyph + " "
	}
	line := fmt.Sprintf("%s  %s%-10s %6.1f", event.Date, glyph, event.Goal, event.Amount)
	if goal, ok := a.catalog.Get(event.Goal); ok {
		line += " " + goal.Unit
	}
	if event.Description != "" {
		line += "  " + event.Description
	}
	fmt.Printf("%s  [%s]\n", line, event.ID)
}

func today() string {
	return time.Now().Format(habit.DateLayout)
}

func parseAmount(raw string) (float64, error) {
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
