package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sinadarvi/quest/config"
	"github.com/sinadarvi/quest/internal/agent/core"
	"github.com/sinadarvi/quest/internal/research"
	"github.com/sinadarvi/quest/internal/store"
	"github.com/sinadarvi/quest/internal/telemetry"
	"github.com/sinadarvi/quest/tools/academic"
	"github.com/sinadarvi/quest/tools/movies"
	"github.com/sinadarvi/quest/tools/weather"
	"github.com/sinadarvi/quest/tools/webfetch"
	"github.com/sinadarvi/quest/tools/websearch"
)

// Run wires every dependency and serves until the listener fails.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.New(log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags))
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tele.Registry(), promhttp.HandlerOpts{})))
	}

	registry, err := core.NewRegistry(cfg.LLM)
	if err != nil {
		return err
	}

	// search providers feed both the research engine and the plain tools
	var webSearcher websearch.WebSearcher
	if cfg.Search.WebAPIKey != "" {
		webSearcher, err = websearch.NewWebSearcher(websearch.Provider(cfg.Search.WebProvider), cfg.Search.WebAPIKey)
		if err != nil {
			return err
		}
	}
	var academicSearcher academic.AcademicSearcher
	if cfg.Search.AcademicAPIKey != "" {
		academicSearcher, err = academic.NewAcademicSearcher(academic.Provider(cfg.Search.AcademicProvider), cfg.Search.AcademicAPIKey)
		if err != nil {
			return err
		}
	}

	var engine *research.Engine
	if webSearcher != nil {
		adapter := core.NewObjectAdapter(registry, cfg.LLM.Routing, tele)
		executor := &research.Executor{Web: webSearcher, Academic: academicSearcher}
		engine = research.NewEngine(adapter, executor, tele, log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags))
	}

	toolbox := &core.Toolbox{
		Engine:   engine,
		Web:      webSearcher,
		Academic: academicSearcher,
		Fetcher:  webfetch.NewFetcher(cfg.Tools.FetchTimeout, cfg.Tools.FetchMaxChars),
	}
	if cfg.Tools.OpenWeatherAPIKey != "" {
		toolbox.Weather = &weather.Client{ApiKey: cfg.Tools.OpenWeatherAPIKey}
	}
	if cfg.Tools.TMDBToken != "" {
		toolbox.Movies = &movies.Client{Token: cfg.Tools.TMDBToken}
	}

	// persistence is optional: without Postgres the service still chats,
	// it just cannot save conversations or accounts
	var st *store.Store
	if dsn, dsnErr := cfg.Storage.Postgres.DSN(); dsnErr == nil {
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st, err = store.NewWithDSN(context.Background(), dsn)
		if err != nil {
			return err
		}
	} else {
		baseLogger.Printf("postgres not configured, running without persistence: %v", dsnErr)
	}

	var cache *store.ReplayCache
	if cfg.Storage.Redis.Host != "" {
		port := cfg.Storage.Redis.Port
		if port == "" {
			port = "6379"
		}
		cache = store.NewReplayCache(cfg.Storage.Redis.Host+":"+port, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
	}

	secret := []byte(cfg.Server.JWTSecret)
	if st != nil && len(secret) == 0 {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}

	chatRoute := cfg.LLM.Routing.Chat
	if chatRoute == "" {
		chatRoute = cfg.LLM.Routing.Fallback
	}
	if chatRoute == "" {
		return fmt.Errorf("no chat model routed (llm.routing.chat or llm.routing.fallback)")
	}

	api := e.Group("/api")
	if st != nil {
		auth := &AuthHandler{Store: st, Secret: secret}
		auth.Register(api.Group("/auth"))
		chats := &ChatsHandler{Store: st}
		chats.Register(api.Group("/chats"), secret)
	}

	ch := &ChatHandler{
		Registry:     registry,
		DefaultRoute: chatRoute,
		Toolbox:      toolbox,
		Store:        st,
		Cache:        cache,
		Telemetry:    tele,
		Timeout:      cfg.General.RequestTimeout,
		Logger:       log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	ch.Register(api.Group("/chat"), secret)

	if addr == "" {
		addr = cfg.Server.Address
	}
	return e.Start(addr)
}
