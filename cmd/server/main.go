package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	crmwebui "github.com/mwinata/crm-web-ui"
	"github.com/mwinata/crm-web-ui/internal/handlers"
	"github.com/mwinata/crm-web-ui/internal/models"
	"github.com/mwinata/crm-web-ui/internal/services"
)

const iconCacheMaxSize = 256

func main() {
	// API keys come from the environment; .env is optional.
	_ = godotenv.Load(".env")

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "crmwebui")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfgFilePath := filepath.Join(cfgPath, "config.yaml")
	cfgFile, err := os.Open(cfgFilePath)
	if err != nil {
		log.Fatal(fmt.Errorf("error opening config file: %w", err))
	}
	defer cfgFile.Close()

	cfg := config{}
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		log.Fatal(fmt.Errorf("error decoding config file: %w", err))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	bot, err := cfg.Bot.bot(cfg.SystemPrompt)
	if err != nil {
		log.Fatal(err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfgPath, "store.db")
	}
	boltDB, err := services.NewBoltDB(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer boltDB.Close()

	if err := seedIfEmpty(boltDB); err != nil {
		log.Fatal(fmt.Errorf("error seeding database: %w", err))
	}

	ttl, err := cfg.iconCacheTTL()
	if err != nil {
		log.Fatal(err)
	}
	icons := services.NewIconCache(cfg.IconBaseURL, ttl, iconCacheMaxSize, logger)

	m, err := handlers.NewMain(bot, boltDB, icons, cfg.Streaming, logger)
	if err != nil {
		log.Fatal(err)
	}

	// Serve static files
	staticFS, err := fs.Sub(crmwebui.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("GET /{$}", m.HandleHome)
	mux.HandleFunc("GET /companies", m.HandleCompanies)
	mux.HandleFunc("GET /contacts", m.HandleContacts)
	mux.HandleFunc("GET /opportunities", m.HandleOpportunities)
	mux.HandleFunc("GET /tasks", m.HandleTasks)
	mux.HandleFunc("GET /icons/{name}", m.HandleIcon)
	mux.HandleFunc("GET /sse/entities", m.HandleSSE)
	mux.HandleFunc("GET /ws/chat/{sessionID}", m.HandleChatSocket)
	mux.HandleFunc("GET /chat/{sessionID}/history", m.HandleChatHistory)
	mux.HandleFunc("DELETE /api/{entity}/{id}", m.HandleDeleteEntity)
	mux.HandleFunc("POST /api/{entity}/bulk-delete", m.HandleBulkDelete)
	mux.HandleFunc("PATCH /api/tasks/{id}", m.HandleUpdateTask)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			log.Printf("Failed to shutdown sse server: %v", err)
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		log.Println("Server starting on :" + cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		log.Printf("Server error: %v", err)

	case sig := <-shutdown:
		log.Printf("Start shutdown, signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
			if err := srv.Close(); err != nil {
				log.Printf("Forcing server close: %v", err)
			}
		}
	}
}

// seedIfEmpty loads a small demo data set on first run so the pages have something to
// show before any integration imports records.
func seedIfEmpty(db services.BoltDB) error {
	ctx := context.Background()

	companies, err := db.Companies(ctx)
	if err != nil {
		return err
	}
	if len(companies) > 0 {
		return nil
	}

	acme := models.Company{
		ID: uuid.New().String(), Name: "Acme Corp", Industry: "manufacturing",
		Website: "acme.example", City: "Detroit", CreatedAt: time.Now(),
	}
	globex := models.Company{
		ID: uuid.New().String(), Name: "Globex", Industry: "energy",
		Website: "globex.example", City: "Austin", CreatedAt: time.Now(),
	}
	for _, c := range []models.Company{acme, globex} {
		if err := db.AddCompany(ctx, c); err != nil {
			return err
		}
	}

	contacts := []models.Contact{
		{
			ID: uuid.New().String(), Name: "Dana Hart", Email: "dana@acme.example",
			Phone: "555-0101", Title: "VP Operations", CompanyID: acme.ID, CreatedAt: time.Now(),
		},
		{
			ID: uuid.New().String(), Name: "Lee Winters", Email: "lee@globex.example",
			Phone: "555-0102", Title: "Procurement", CompanyID: globex.ID, CreatedAt: time.Now(),
		},
	}
	for _, c := range contacts {
		if err := db.AddContact(ctx, c); err != nil {
			return err
		}
	}

	opps := []models.Opportunity{
		{
			ID: uuid.New().String(), Name: "Acme plant retrofit", CompanyID: acme.ID,
			Stage: models.StageProposal, Amount: 125000,
			CloseDate: time.Now().AddDate(0, 1, 0), CreatedAt: time.Now(),
		},
		{
			ID: uuid.New().String(), Name: "Globex pilot", CompanyID: globex.ID,
			Stage: models.StageLead, Amount: 40000,
			CloseDate: time.Now().AddDate(0, 2, 0), CreatedAt: time.Now(),
		},
	}
	for _, o := range opps {
		if err := db.AddOpportunity(ctx, o); err != nil {
			return err
		}
	}

	tasks := []models.Task{
		{
			ID: uuid.New().String(), Title: "Send retrofit proposal", Owner: "dana",
			Due: time.Now().AddDate(0, 0, 7), RelatedTo: acme.ID, CreatedAt: time.Now(),
		},
		{
			ID: uuid.New().String(), Title: "Schedule pilot kickoff", Owner: "lee",
			Due: time.Now().AddDate(0, 0, 14), RelatedTo: globex.ID, CreatedAt: time.Now(),
		},
	}
	for _, t := range tasks {
		if err := db.AddTask(ctx, t); err != nil {
			return err
		}
	}

	return nil
}
