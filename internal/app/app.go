package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/accountability"
	"github.com/samtjhia/SamsStudyTracker/internal/admin"
	"github.com/samtjhia/SamsStudyTracker/internal/config"
	"github.com/samtjhia/SamsStudyTracker/internal/httpapi"
	"github.com/samtjhia/SamsStudyTracker/internal/mailer"
	"github.com/samtjhia/SamsStudyTracker/internal/report"
	"github.com/samtjhia/SamsStudyTracker/internal/scheduler"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
	"github.com/samtjhia/SamsStudyTracker/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI // nil when BOT_TOKEN is empty
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		bot.Debug = false
		a.bot = bot
	}

	gin.SetMode(gin.ReleaseMode)
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return a, nil
}

func openRepo(ctx context.Context, cfg config.Config) (store.Repo, error) {
	switch cfg.DBDriver {
	case "postgres":
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return store.OpenSQLite(ctx, cfg.DBPath)
	}
}

func (a *App) newGateway() (mailer.Gateway, error) {
	if a.cfg.SMTPHost == "" {
		a.log.Warn("SMTP_HOST is empty, reports will only be logged")
		return mailer.NewLogOnly(a.log), nil
	}
	return mailer.NewSMTP(mailer.Settings{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUser,
		Password: a.cfg.SMTPPass,
		From:     a.cfg.Sender(),
		TLS:      a.cfg.SMTPTLS,
		Timeout:  30 * time.Second,
	}, a.log)
}

// wire builds the report pipeline on top of the opened repository.
func (a *App) wire() error {
	loc := a.cfg.Location()

	builder, err := report.NewBuilder(a.cfg.ChartBaseURL, loc)
	if err != nil {
		return err
	}
	gateway, err := a.newGateway()
	if err != nil {
		return err
	}

	opts := []accountability.Option{accountability.WithSendGap(a.cfg.SendGap)}
	if a.bot != nil {
		opts = append(opts, accountability.WithAlerter(telegram.NewNotifier(a.bot, a.cfg.AdminChatID, a.log)))
	}
	orch := accountability.New(a.repo, builder, gateway, a.log, loc, opts...)

	a.sched = scheduler.New(a.repo, orch, a.log, loc)
	adminSvc := admin.New(a.repo, a.sched, a.log)

	a.httpSrv.Handler = httpapi.NewRouter(httpapi.NewHandler(a.repo, adminSvc, a.log), a.cfg.AdminToken, a.log)
	if a.bot != nil {
		a.router = telegram.NewRouter(a.bot, a.log, adminSvc, a.cfg.AdminChatID)
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting study tracker",
		zap.String("db", a.cfg.DBDriver),
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.cfg.Location().String()),
		zap.Bool("telegram", a.bot != nil),
	)

	repo, err := openRepo(ctx, a.cfg)
	if err != nil {
		a.log.Error("open database failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("database ready")

	if err := a.wire(); err != nil {
		_ = a.repo.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()
	go a.sched.Run(ctx)

	// A nil channel blocks forever, leaving only the shutdown case.
	var updCh tgbotapi.UpdatesChannel
	if a.bot != nil {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh = a.bot.GetUpdatesChan(u)
	}

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.bot != nil {
				a.bot.StopReceivingUpdates()
			}

			// Report runs already started finish before the store closes.
			a.sched.Wait()
			_ = a.repo.Close()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
