package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/schuanhe/crawl-orch/internal/config"
	"github.com/schuanhe/crawl-orch/internal/domain"
	"github.com/schuanhe/crawl-orch/internal/notify"
	"github.com/schuanhe/crawl-orch/internal/registry"
	"github.com/schuanhe/crawl-orch/internal/runmgr"
	"github.com/schuanhe/crawl-orch/internal/runstore"
	"github.com/schuanhe/crawl-orch/internal/scheduler"
	"github.com/schuanhe/crawl-orch/internal/webext"
	"github.com/schuanhe/crawl-orch/web/api"
)

var (
	servePort    int
	historyLimit int
	scheduleType string
	scheduleTime string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator and web UI",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// crawlers command
	crawlersCmd := &cobra.Command{
		Use:   "crawlers",
		Short: "List registered crawlers",
		RunE:  runCrawlers,
	}
	rootCmd.AddCommand(crawlersCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run CRAWLER",
		Short: "Run a crawler and wait for it to finish",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnce,
	}
	rootCmd.AddCommand(runCmd)

	// active command
	activeCmd := &cobra.Command{
		Use:   "active",
		Short: "Show runs currently executing",
		RunE:  runActive,
	}
	rootCmd.AddCommand(activeCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent run history",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(historyCmd)

	// schedule command group
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled tasks",
	}
	addCmd := &cobra.Command{
		Use:   "add CRAWLER",
		Short: "Schedule a crawler",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleAdd,
	}
	addCmd.Flags().StringVar(&scheduleType, "type", "daily", "schedule type: daily or interval")
	addCmd.Flags().StringVar(&scheduleTime, "time", "", `time value: "HH:MM" for daily, hours for interval`)
	scheduleCmd.AddCommand(addCmd)
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE:  runScheduleList,
	})
	scheduleCmd.AddCommand(&cobra.Command{
		Use:   "remove TASK",
		Short: "Remove a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleRemove,
	})
	rootCmd.AddCommand(scheduleCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// openStack builds the shared runtime: config, timezone, store, registry
// and run manager. Callers own the returned manager's shutdown.
func openStack() (*config.Config, *runstore.Store, *registry.Registry, *runmgr.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := os.MkdirAll(cfg.General.CrawlersDir, 0755); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := os.MkdirAll(cfg.General.LogsDir, 0755); err != nil {
		return nil, nil, nil, nil, err
	}

	store, err := runstore.New(cfg.General.DatabasePath, loc)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reg := registry.New(cfg.General.CrawlersDir)
	if err := reg.EnsureExample(); err != nil {
		store.Close()
		return nil, nil, nil, nil, fmt.Errorf("seeding example crawler: %w", err)
	}

	mgr := runmgr.New(reg, store, runmgr.Options{
		LogsDir:   cfg.General.LogsDir,
		PythonBin: cfg.General.PythonBin,
		Timeout:   cfg.RunTimeout(),
		Location:  loc,
	})
	return cfg, store, reg, mgr, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, store, reg, mgr, err := openStack()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	sched := scheduler.New(store, reg, mgr, loc)

	exts := webext.NewRegistry()
	refreshExts := func() {
		defs, err := reg.List()
		if err != nil {
			log.Printf("listing crawlers: %v", err)
			return
		}
		exts.Refresh(defs)
	}
	refreshExts()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := registry.NewWatcher(reg, refreshExts)
	if err != nil {
		log.Printf("crawler dir watcher disabled: %v", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	notifier := notify.NewMultiNotifier(
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
	)

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(mgr, sched, reg, exts, addr)

	mgr.SetFinishCallback(func(run runmgr.ActiveRun, status domain.RunStatus) {
		server.Broadcast(api.SSEEvent{
			Type: "run_finished",
			Data: api.RunFinishedEvent{
				RunID:       run.RunID,
				CrawlerID:   run.CrawlerID,
				CrawlerName: run.CrawlerName,
				Status:      string(status),
			},
		})
		if status == domain.StatusCompleted && !cfg.Notifications.NotifySuccess {
			return
		}
		if err := notifier.Send(notify.RunFinished(run.CrawlerName, run.RunID, status)); err != nil {
			log.Printf("notification failed: %v", err)
		}
	})

	// The callback is in place; schedules may start firing runs now
	if err := sched.Rehydrate(); err != nil {
		return fmt.Errorf("rehydrating schedules: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	fmt.Printf("crawl-orch listening at http://%s\n", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		fmt.Println("shutting down")
		return nil
	}
}

func runCrawlers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := registry.New(cfg.General.CrawlersDir)
	defs, err := reg.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tWEB")
	for _, def := range defs {
		web := "-"
		if def.WebSupport {
			web = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.ID, def.Name, def.Version, web)
	}
	return w.Flush()
}

func runOnce(cmd *cobra.Command, args []string) error {
	_, store, _, mgr, err := openStack()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()

	done := make(chan domain.RunStatus, 1)
	mgr.SetFinishCallback(func(run runmgr.ActiveRun, status domain.RunStatus) {
		done <- status
	})

	runID, err := mgr.StartRun(args[0], domain.RunManual, "")
	if err != nil {
		return err
	}
	fmt.Printf("started run %s\n", runID)

	status := <-done
	run, err := mgr.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("finished: %s (log: %s)\n", status, run.LogPath)
	if status != domain.StatusCompleted {
		return fmt.Errorf("run ended with status %s", status)
	}
	return nil
}

func runActive(cmd *cobra.Command, args []string) error {
	_, store, _, mgr, err := openStack()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()

	// A fresh process has no in-memory handles; report rows the store
	// still marks as running (e.g. another serve process owns them).
	runs, err := store.ListActiveRuns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCRAWLER\tSTARTED\tTYPE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			run.ID, run.CrawlerName, humanize.Time(run.StartTime), run.RunType)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, store, _, mgr, err := openStack()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()

	runs, err := mgr.History(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCRAWLER\tSTARTED\tDURATION\tSTATUS\tTYPE")
	for _, run := range runs {
		duration := "-"
		if run.EndTime != nil {
			duration = run.EndTime.Sub(run.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.CrawlerName, humanize.Time(run.StartTime), duration, run.Status, run.RunType)
	}
	return w.Flush()
}

func openScheduler() (*runstore.Store, *runmgr.Manager, *scheduler.Scheduler, error) {
	cfg, store, reg, mgr, err := openStack()
	if err != nil {
		return nil, nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		store.Close()
		mgr.Shutdown()
		return nil, nil, nil, err
	}
	return store, mgr, scheduler.New(store, reg, mgr, loc), nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	store, mgr, sched, err := openScheduler()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()
	defer sched.Stop()

	task, err := sched.AddTask(args[0], domain.ScheduleType(scheduleType), scheduleTime)
	if err != nil {
		return err
	}
	fmt.Printf("scheduled %s (%s %s) as task %s\n",
		task.CrawlerName, task.ScheduleType, task.TimeValue, task.ID)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	store, mgr, sched, err := openScheduler()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()
	defer sched.Stop()

	tasks, err := sched.ListTasks()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tCRAWLER\tTYPE\tTIME\tCREATED")
	for _, task := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			task.ID, task.CrawlerName, task.ScheduleType, task.TimeValue, humanize.Time(task.CreatedAt))
	}
	return w.Flush()
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	store, mgr, sched, err := openScheduler()
	if err != nil {
		return err
	}
	defer store.Close()
	defer mgr.Shutdown()
	defer sched.Stop()

	if err := sched.RemoveTask(args[0]); err != nil {
		return err
	}
	fmt.Printf("removed task %s\n", args[0])
	return nil
}
