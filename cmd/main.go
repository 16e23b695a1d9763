package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/decision-timeline-backend/internal/db"
	"github.com/yungbote/decision-timeline-backend/internal/handlers"
	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/repos"
	"github.com/yungbote/decision-timeline-backend/internal/server"
	"github.com/yungbote/decision-timeline-backend/internal/services"
	"github.com/yungbote/decision-timeline-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := databaseService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	decisionRepo := repos.NewDecisionRepo(theDB, log)

	// Services
	log.Info("Setting up services from main...")
	decisionService := services.NewDecisionService(theDB, log, decisionRepo)
	statsService := services.NewTraceStatsService(theDB, log, decisionRepo)
	exportService := services.NewExportService(theDB, log, decisionRepo)

	// Handlers
	log.Info("Setting up handlers from main...")
	decisionHandler := handlers.NewDecisionHandler(log, decisionService, exportService)
	traceHandler := handlers.NewTraceHandler(log, statsService)

	// Router
	log.Info("Setting up router from main...")
	var corsOrigins []string
	if raw := utils.GetEnv("CORS_ORIGINS", "", log); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}
	router := server.NewRouter(server.RouterConfig{
		DecisionHandler: decisionHandler,
		TraceHandler:    traceHandler,
		CORSOrigins:     corsOrigins,
	})

	port := utils.GetEnvAsInt("PORT", 8080, log)
	log.Info("Server listening", "port", port)
	if err := router.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
