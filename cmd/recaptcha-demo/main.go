// cmd/recaptcha-demo/main.go
package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recaptcha-gate/internal/common/config"
	"recaptcha-gate/internal/common/logger"
	"recaptcha-gate/internal/common/observability"
	"recaptcha-gate/internal/gate"
	"recaptcha-gate/internal/render"
	"recaptcha-gate/internal/replay"
	"recaptcha-gate/internal/verify"
)

//go:embed templates/*
var templatesFS embed.FS

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting recaptcha demo server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("recaptcha-demo")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Verification Client ---
	verifier, err := verify.NewVerifier(cfg.Recaptcha, log)
	if err != nil {
		// Missing credentials are the one error allowed to halt startup.
		zapLog.Fatal("verifier init failed", zap.Error(err))
	}
	zapLog.Info("Verification client initialized")

	// --- Init Replay Guard (optional) ---
	gateOpts := []gate.Option{}
	if cfg.Replay.Enabled {
		var store *replay.RedisStore
		err = retryWithBackoff(func() error {
			store = replay.NewRedisStore(cfg.Replay.Redis)
			return store.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer store.Close()
		zapLog.Info("Redis connected successfully")

		gateOpts = append(gateOpts, gate.WithReplayGuard(
			store, time.Duration(cfg.Replay.TTLSeconds)*time.Second,
		))
	}

	validationGate := gate.New(verifier, log, gateOpts...)

	srv := newServer(cfg, validationGate, log, zapLog)

	router := mux.NewRouter()
	router.HandleFunc("/", srv.handleForm).Methods(http.MethodGet)
	router.HandleFunc("/contact", srv.handleSubmit).Methods(http.MethodPost)
	router.Handle("/static/recaptcha.js", render.ScriptHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		zapLog.Info("Demo server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("Demo server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error during server shutdown", zap.Error(err))
	}

	zapLog.Info("Demo server stopped gracefully")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// server carries the request handlers' shared dependencies.
type server struct {
	cfg       *config.Config
	gate      *gate.Gate
	log       logger.Logger
	zapLog    *zap.Logger
	templates *template.Template
}

func newServer(cfg *config.Config, g *gate.Gate, log logger.Logger, zapLog *zap.Logger) *server {
	tmpl := template.Must(template.ParseFS(templatesFS, "templates/*.html"))
	return &server{
		cfg:       cfg,
		gate:      g,
		log:       log,
		zapLog:    zapLog,
		templates: tmpl,
	}
}

type contactPage struct {
	Title       string
	ScriptTag   template.HTML
	HiddenInput template.HTML
	FieldErrors map[string]string
	Submitted   bool
	Name        string
	Message     string
}

func (s *server) handleForm(w http.ResponseWriter, r *http.Request) {
	widget := render.NewWidget(s.cfg.Recaptcha, "contact_form")

	scriptTag, err := widget.ScriptTag()
	if err != nil {
		s.renderError(w, err)
		return
	}
	hiddenInput, err := widget.HiddenInput()
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.renderPage(w, contactPage{
		Title:       "Contact us",
		ScriptTag:   scriptTag,
		HiddenInput: hiddenInput,
		FieldErrors: map[string]string{},
	})
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	submission := &formSubmission{
		values: r.PostForm,
		errors: map[string]string{},
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	ok := s.gate.Validate(r.Context(), formBinder{}, submission, render.DefaultFieldName, verify.Request{
		ExpectedAction: "contact_form",
		RemoteAddr:     host,
		ServingHost:    r.Host,
	})

	widget := render.NewWidget(s.cfg.Recaptcha, "contact_form")
	scriptTag, _ := widget.ScriptTag()
	hiddenInput, _ := widget.HiddenInput()

	page := contactPage{
		Title:       "Contact us",
		ScriptTag:   scriptTag,
		HiddenInput: hiddenInput,
		FieldErrors: submission.errors,
		Submitted:   ok,
		Name:        submission.values.Get("name"),
		Message:     submission.values.Get("message"),
	}

	if !ok {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	s.renderPage(w, page)
}

func (s *server) renderPage(w http.ResponseWriter, page contactPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "contact.html", page); err != nil {
		s.zapLog.Error("template render failed", zap.Error(err))
	}
}

func (s *server) renderError(w http.ResponseWriter, err error) {
	s.zapLog.Error("page render failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// formSubmission adapts a parsed POST body to the gate's binder interface.
type formSubmission struct {
	values url.Values
	errors map[string]string
}

type formBinder struct{}

func (formBinder) FieldValue(model interface{}, attribute string) string {
	return model.(*formSubmission).values.Get(attribute)
}

func (formBinder) SetFieldError(model interface{}, attribute, message string) {
	model.(*formSubmission).errors[attribute] = message
}
