package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/assets"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/config"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/game"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/metrics"
	"github.com/youngZwiebelandtheGemuseBeat/online_jigsaw_puzzle/server/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		logLevel   string
		logPretty  bool
	)
	cmd := &cobra.Command{
		Use:           "puzzle-server",
		Short:         "Authoritative multiplayer jigsaw puzzle server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logLevel, logPretty)

			cfg, err := config.Load(configPath)
			if err != nil {
				log.Error().Err(err).Str("path", configPath).Msg("config")
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (.yaml or .lua)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides config and PORT")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.Flags().BoolVar(&logPretty, "log-pretty", false, "human readable console logs")
	return cmd
}

func setupLogging(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	geom := game.Geometry{
		PieceWidth:          cfg.Puzzle.PieceWidth,
		PieceHeight:         cfg.Puzzle.PieceHeight,
		ScaleX:              1,
		ScaleZ:              1,
		SnapThreshold:       cfg.Puzzle.SnapThreshold,
		ConnectionThreshold: cfg.Puzzle.ConnectionThreshold,
	}
	if img, err := assets.Probe(cfg.ImagePath()); err != nil {
		log.Warn().Err(err).Str("image", cfg.ImagePath()).Msg("image probe failed, using square board")
	} else {
		geom.ScaleX, geom.ScaleZ = game.AspectScale(img.AspectRatio())
		log.Info().Int("width", img.Width).Int("height", img.Height).Str("format", img.Format).Msg("puzzle image")
	}

	newRoom := func(id string) (game.Engine, error) {
		seed := cfg.Puzzle.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return game.NewRoom(game.RoomOptions{
			ID:          id,
			ImageURL:    cfg.ImageURL(),
			Cols:        cfg.Puzzle.Cols,
			Rows:        cfg.Puzzle.Rows,
			MaxSessions: cfg.Limits.MaxSessions,
			Geometry:    geom,
			Layout:      game.Layout(cfg.Puzzle.Layout),
			Rand:        rand.New(rand.NewSource(seed)),
		})
	}

	hub := ws.NewHub(ws.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		NewRoom:        newRoom,
		SendBuffer:     cfg.Limits.SendBuffer,
		DragRate:       rate.Limit(cfg.Limits.DragRate),
		DragBurst:      cfg.Limits.DragBurst,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	hub.Mount(r)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/images/*", http.StripPrefix("/images", assets.Handler(cfg.ImageDir)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cors(cfg.AllowedOrigins, r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).
			Int("rows", cfg.Puzzle.Rows).Int("cols", cfg.Puzzle.Cols).
			Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("listen")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cors(allow []string, next http.Handler) http.Handler {
	allowSet := map[string]struct{}{}
	for _, a := range allow {
		if a != "" {
			allowSet[a] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowSet[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
