package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/livequiz/internal/answer"
	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/feed"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/pacer"
	"github.com/victornm/livequiz/internal/participant"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/store/memory"
	"github.com/victornm/livequiz/internal/store/postgres"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/token"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	Log struct {
		Level string
	}

	HTTP struct {
		Port int32
		// PublicURL is the address players open, join links are <PublicURL>/play/<game>.
		PublicURL string
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		// Embedded runs an in-process Redis instead of connecting to Addrs. Single instance only.
		Embedded    bool
		Leaderboard RedisConfig
		Feed        RedisConfig
	}

	Store struct {
		Driver string
	}

	Postgres struct {
		Addr    string
		User    string
		Pass    string
		Name    string
		Options string
		// Migrate applies pending migrations on start.
		Migrate bool
	}

	Game struct {
		AnswerWindow      time.Duration
		ChoiceRevealDelay time.Duration
		LeaderboardTopN   int
	}

	Token struct {
		Secret string
		TTL    time.Duration
	}
}

// DefaultConfig is overridden by the config file then by the environment.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.HTTP.PublicURL = "http://localhost:8080"
	c.GRPC.Port = 9090
	c.Redis.Leaderboard = RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "livequiz:leaderboard"}
	c.Redis.Feed = RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "livequiz:feed"}
	c.Store.Driver = StoreDriverPostgres
	c.Postgres.Addr = "localhost:5432"
	c.Postgres.User = "postgres"
	c.Postgres.Name = "livequiz"
	c.Postgres.Options = "sslmode=disable"
	c.Postgres.Migrate = true
	c.Game.AnswerWindow = answer.DefaultWindow
	c.Game.ChoiceRevealDelay = answer.DefaultChoiceRevealDelay
	c.Game.LeaderboardTopN = leaderboard.DefaultTopN
	c.Token.TTL = 24 * time.Hour
	return c
}

// PostgresDSN is the connection string of the configured database.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Pass),
		Host:     c.Postgres.Addr,
		Path:     "/" + c.Postgres.Name,
		RawQuery: c.Postgres.Options,
	}

	return u.String()
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			embedded    *miniredis.Miniredis
			leaderboard redis.UniversalClient
			feed        redis.UniversalClient
		}

		postgres *pgxpool.Pool
		store    store.Store
	}

	service struct {
		quiz        *quiz.Service
		game        *game.Service
		participant *participant.Service
		answer      *answer.Service
		leaderboard *leaderboard.Service
		pacer       *pacer.Pacer
		feed        *feed.Feed
	}

	http *http.Server
	grpc *grpc.Server

	// done is closed on shutdown to end the open watches.
	done chan struct{}
}

func Init(c Config) (*Server, error) {
	if c.Token.Secret == "" {
		return nil, fmt.Errorf("server: token secret is required")
	}

	s := &Server{c: c, done: make(chan struct{})}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		s.closeInfra(context.Background())
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if err := s.service.pacer.Resume(context.Background()); err != nil {
		s.service.pacer.Stop()
		s.eb.Stop()
		s.closeInfra(context.Background())
		return nil, fmt.Errorf("server: resume pacer: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	if s.c.Redis.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("embedded: %w", err)
		}

		slog.Warn("server: using embedded redis, do not run more than one instance", "addr", mr.Addr())
		s.infra.redis.embedded = mr
		s.c.Redis.Leaderboard.Addrs = []string{mr.Addr()}
		s.c.Redis.Feed.Addrs = []string{mr.Addr()}
	}

	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			_ = r.Close()
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			_ = r.Close()
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.feed, err = connect("feed", s.c.Redis.Feed)
	if err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case StoreDriverMemory:
		slog.Warn("server: using in-memory store, data is lost on shutdown")
		s.infra.store = memory.New()
		return nil
	case StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := s.c.PostgresDSN()

	if s.c.Postgres.Migrate {
		if err := postgres.Migrate(ctx, dsn); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = postgres.New(db)
	return nil
}

func (s *Server) initService() {
	st := s.infra.store
	tokens := token.NewIssuer(token.Config{
		Secret: s.c.Token.Secret,
		TTL:    s.c.Token.TTL,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Store: st,
	})

	s.service.game = game.NewService(game.Config{
		EventBus:  s.eb,
		Store:     st,
		Tokens:    tokens,
		PublicURL: s.c.HTTP.PublicURL,
	})

	s.service.participant = participant.NewService(participant.Config{
		EventBus: s.eb,
		Store:    st,
		Tokens:   tokens,
	})

	s.service.answer = answer.NewService(answer.Config{
		EventBus:          s.eb,
		Store:             st,
		Tokens:            tokens,
		AnswerWindow:      s.c.Game.AnswerWindow,
		ChoiceRevealDelay: s.c.Game.ChoiceRevealDelay,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Store:    st,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
		TopN:     s.c.Game.LeaderboardTopN,
	})

	s.service.pacer = pacer.New(pacer.Config{
		EventBus:          s.eb,
		Store:             st,
		Games:             s.service.game,
		AnswerWindow:      s.c.Game.AnswerWindow,
		ChoiceRevealDelay: s.c.Game.ChoiceRevealDelay,
	})

	s.service.feed = feed.New(feed.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.feed,
		Prefix:   s.c.Redis.Feed.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.GET("/healthz", s.healthz)

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors()...)

	a := api.New(api.Config{
		GRPC:        s.grpc,
		Quiz:        s.service.quiz,
		Game:        s.service.game,
		Participant: s.service.participant,
		Answer:      s.service.answer,
		Leaderboard: s.service.leaderboard,
		Feed:        s.service.feed,
		Done:        s.done,
	})
	a.RegisterHTTP(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error { return s.infra.redis.leaderboard.Ping(ctx).Err() })
	eg.Go(func() error { return s.infra.redis.feed.Ping(ctx).Err() })
	if s.infra.postgres != nil {
		eg.Go(func() error { return s.infra.postgres.Ping(ctx) })
	}

	if err := eg.Wait(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(s.done)

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		slog.WarnContext(ctx, "server: graceful gRPC stop timed out, closing connections")
		s.grpc.Stop()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
		_ = s.http.Close()
	}

	s.service.pacer.Stop()
	s.eb.Stop()
	s.closeInfra(ctx)

	slog.InfoContext(ctx, "server: shutdown completed")
}

func (s *Server) closeInfra(ctx context.Context) {
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.feed} {
		if r == nil {
			continue
		}

		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	if s.infra.redis.embedded != nil {
		s.infra.redis.embedded.Close()
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
}
