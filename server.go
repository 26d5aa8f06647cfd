package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"blogview/api/routes"
	"blogview/config"
	"blogview/logx"
	"blogview/models"
	"blogview/services"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the configuration file (defaults only when empty)")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	conf := config.AppConfig
	logx.Init(conf.Logs.Level, conf.Logs.Format)
	logx.Infof("Starting blogview, api=%s listen=%s", conf.API.BaseURL, conf.ListenAddr())

	models.ZonelessLocation = conf.Location()
	if conf.Logs.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	api, err := services.NewAPIClient(services.ClientOptions{
		BaseURL: conf.API.BaseURL,
		Timeout: conf.API.Timeout,
	})
	if err != nil {
		panic("Failed to create blog API client: " + err.Error())
	}

	var events services.EventPublisher = services.NopPublisher{}
	if conf.RabbitMQ.URL != "" {
		publisher, err := services.NewRabbitPublisher(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange)
		if err != nil {
			logx.Warnf("RabbitMQ unavailable, activity events disabled: %v", err)
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	var backend services.SessionBackend
	if conf.Session.Backend == "redis" {
		if err := services.InitRedis(); err != nil {
			panic("Failed to connect to Redis: " + err.Error())
		}
		defer services.CloseRedis()
		backend = services.NewRedisSessionBackend(services.RedisClient, conf.Session.IdleTTL)
	}

	sessions := services.NewSessionManager(services.SessionManagerOptions{
		API:      api,
		Events:   events,
		AuthorID: conf.API.AuthorID,
		Backend:  backend,
		IdleTTL:  conf.Session.IdleTTL,
		OnChange: services.PushState,
	})

	router, err := routes.NewRouter(routes.PageOptions{
		Sessions:   sessions,
		CookieName: conf.Session.Cookie,
		CookieTTL:  conf.Session.IdleTTL,
		APIBaseURL: api.BaseURL(),
		Timestamps: services.TimestampFormatter{Locale: conf.View.Locale, Location: conf.Location()},
	})
	if err != nil {
		panic("Failed to build router: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go sessions.RunSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr:              conf.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logx.Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Errorf("Shutdown: %v", err)
	}
	sessions.Drain()
}
