package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alarmapp "refundtrack/internal/alarms/application"
	alarmrepo "refundtrack/internal/alarms/infrastructure/postgres"
	alarmhttp "refundtrack/internal/alarms/interfaces/http"
	alarmmetrics "refundtrack/internal/alarms/metrics"
	alarmnotify "refundtrack/internal/alarms/notify"
	"refundtrack/internal/audit"
	"refundtrack/internal/auth"
	caseapp "refundtrack/internal/cases/application"
	caserepo "refundtrack/internal/cases/infrastructure/postgres"
	casehttp "refundtrack/internal/cases/interfaces/http"
	"refundtrack/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	alarmCfg, err := alarmapp.LoadConfig()
	if err != nil {
		logger.Fatalf("alarm config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	caseRepo := caserepo.NewCaseRepository(db)
	alarmRepo := alarmrepo.NewAlarmRepository(db)
	thresholdRepo := alarmrepo.NewThresholdRepository(db)
	outboxStore := alarmrepo.NewOutboxStore(db)

	thresholdService, err := alarmapp.NewThresholdService(thresholdRepo, alarmCfg.Defaults, nil, logger)
	if err != nil {
		logger.Fatalf("threshold service error: %v", err)
	}

	reconcilerOpts := []alarmapp.ReconcilerOption{}
	if cfg.NotifyOutbox || alarmCfg.WebhookURL != "" {
		notifier, dispatcher, err := buildNotifier(cfg, alarmCfg, outboxStore, logger)
		if err != nil {
			logger.Fatalf("notifier error: %v", err)
		}
		if notifier != nil {
			reconcilerOpts = append(reconcilerOpts, alarmapp.WithNotifier(notifier))
		}
		if dispatcher != nil {
			go dispatcher.Run(context.Background())
		}
	}

	reconciler, err := alarmapp.NewReconciler(caseRepo, alarmRepo, thresholdService, logger, reconcilerOpts...)
	if err != nil {
		logger.Fatalf("reconciler error: %v", err)
	}

	alarmService, err := alarmapp.NewService(alarmRepo, nil)
	if err != nil {
		logger.Fatalf("alarm service error: %v", err)
	}
	dashboardService, err := alarmapp.NewDashboardService(caseRepo, thresholdService, nil)
	if err != nil {
		logger.Fatalf("dashboard service error: %v", err)
	}
	statusService, err := caseapp.NewStatusService(caseRepo, reconciler, nil, logger)
	if err != nil {
		logger.Fatalf("status service error: %v", err)
	}

	gate := alarmapp.NewRunGate()
	runStore := alarmrepo.NewRunRepository(db)
	runner, err := alarmapp.NewBatchRunner(caseRepo, alarmRepo, reconciler, gate, alarmmetrics.New(), nil, logger,
		alarmapp.WithRunStore(runStore))
	if err != nil {
		logger.Fatalf("batch runner error: %v", err)
	}
	if err := runner.Restore(context.Background()); err != nil {
		logger.Printf("event=run_history_restore_failed detail=%v", err)
	}
	scheduler := alarmapp.NewScheduler(runner, alarmCfg.DailyAt, logger)
	go scheduler.Start(context.Background())

	alarmHandler, err := alarmhttp.NewHandler(alarmService, dashboardService, thresholdService, runner, auditRepo, logger)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}
	caseHandler, err := casehttp.NewHandler(statusService, auditRepo, logger)
	if err != nil {
		logger.Fatalf("case handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/alarms", alarmHandler)
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/dashboard", alarmHandler)
	mux.Handle("/api/v1/dashboard/", alarmHandler)
	mux.Handle("/api/v1/thresholds/", alarmHandler)
	mux.Handle("/api/v1/reconcile/run", alarmHandler)
	mux.Handle("/api/v1/reconcile/last", alarmHandler)
	mux.Handle("/api/v1/cases/", caseHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func buildNotifier(cfg config, alarmCfg alarmapp.Config, outboxStore *alarmrepo.OutboxStore, logger *log.Logger) (alarmapp.Notifier, *alarmnotify.Dispatcher, error) {
	urls := alarmCfg.WebhookURLs()
	if len(urls) == 0 {
		return nil, nil, nil
	}
	tpl, err := alarmnotify.NewTemplate(alarmCfg.NotifyTemplate)
	if err != nil {
		return nil, nil, err
	}
	notifiers := make([]alarmapp.Notifier, 0, len(urls))
	for _, url := range urls {
		channel, err := alarmnotify.NewWebhookChannel(url)
		if err != nil {
			return nil, nil, err
		}
		notifier, err := alarmnotify.NewChannelNotifier(channel, tpl)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, notifier)
	}
	var delivery alarmapp.Notifier = notifiers[0]
	if len(notifiers) > 1 {
		delivery = alarmnotify.NewMultiNotifier(notifiers...)
	}
	if !cfg.NotifyOutbox {
		return delivery, nil, nil
	}
	enqueuer, err := alarmnotify.NewOutboxNotifier(outboxStore)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := alarmnotify.NewDispatcher(outboxStore, delivery, cfg.NotifyDispatchEvery, logger)
	if err != nil {
		return nil, nil, err
	}
	return enqueuer, dispatcher, nil
}

type config struct {
	DatabaseURL         string
	HTTPAddr            string
	JWTSecret           string
	NotifyOutbox        bool
	NotifyDispatchEvery time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:         getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:           getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		NotifyOutbox:        getenvDefault("NOTIFY_OUTBOX", "") == "true",
		NotifyDispatchEvery: getenvDuration("NOTIFY_DISPATCH_EVERY", 15*time.Second),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
