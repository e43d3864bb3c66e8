package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vellum/internal/cli"
	"vellum/internal/logger"
	"vellum/pkg/view"
)

const version = "0.3.0"

func main() {
	godotenv.Load()

	// 1. CLI DISPATCHER
	if len(os.Args) > 1 {
		cmd := os.Args[1]
		switch cmd {
		case "render":
			cli.HandleRender(os.Args[2:])
		case "check":
			cli.HandleCheck(os.Args[2:])
		case "disasm":
			cli.HandleDisasm(os.Args[2:])
		case "serve":
			serve()
		case "version":
			fmt.Println("vellum " + version)
		default:
			fmt.Printf("Unknown command %q\n", cmd)
			fmt.Println("Usage: vellum <render|check|disasm|serve|version>")
			os.Exit(1)
		}
		return
	}

	serve()
}

// serve runs the development server: every request path maps to a
// template under the view root and query parameters become template
// data.
func serve() {
	appEnv := os.Getenv("APP_ENV")
	logger.Setup(appEnv)
	slog.Info("Starting vellum...", "env", appEnv)

	eng := view.New(cli.ViewRoot(),
		view.WithDebug(appEnv == "development"),
		view.WithProduction(appEnv == "production"),
	)

	startServer(buildRouter(eng))
}

func buildRouter(eng *view.Engine) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.Middleware)

	// Rate Limiting
	rlReqStr := os.Getenv("RATE_LIMIT_REQUESTS")
	if rlReqStr == "" {
		slog.Info("⚠️  Rate Limiting Disabled (RATE_LIMIT_REQUESTS not set)")
	} else {
		rlRequests, _ := strconv.Atoi(rlReqStr)
		if rlRequests == 0 {
			rlRequests = 100
		}
		rlWindow, _ := strconv.Atoi(os.Getenv("RATE_LIMIT_WINDOW"))
		if rlWindow == 0 {
			rlWindow = 60
		}
		r.Use(httprate.LimitByIP(rlRequests, time.Duration(rlWindow)*time.Second))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus Metrics Endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Static Files
	workDir, _ := os.Getwd()
	filesDir := filepath.Join(workDir, "public")
	r.Get("/public/*", func(w http.ResponseWriter, req *http.Request) {
		rctx := chi.RouteContext(req.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(http.Dir(filesDir)))
		fs.ServeHTTP(w, req)
	})

	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		name := strings.Trim(req.URL.Path, "/")
		if name == "" {
			name = "index"
		}

		data := map[string]any{}
		for key, vals := range req.URL.Query() {
			if len(vals) == 1 {
				data[key] = vals[0]
			} else {
				data[key] = vals
			}
		}

		out, err := eng.Render(name, data)
		if err != nil {
			status := http.StatusInternalServerError
			if strings.Contains(err.Error(), "view not found") {
				status = http.StatusNotFound
			}
			slog.Error("Render failed", "template", name, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(out))
	})

	return r
}

func startServer(handler http.Handler) {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = ":3000"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:    port,
		Handler: handler,
	}

	// Start Listener first to catch "port in use" error cleanly
	ln, err := net.Listen("tcp", port)
	if err != nil {
		slog.Error("❌ Failed to bind port", "port", port, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("🚀 Server Ready", "port", port, "views", cli.ViewRoot())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("❌ Listen failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("⚠️  Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("❌ Server Forced Shutdown", "error", err)
	} else {
		slog.Info("✅ Server Gracefully Stopped")
	}
}
