package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"contest-lifecycle/internal/config"
	"contest-lifecycle/internal/database"
	"contest-lifecycle/internal/handlers"
	"contest-lifecycle/internal/jobs"
	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/services"
	"contest-lifecycle/internal/settlement"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()

	// Lifecycle core
	repo := repository.NewRepository(db)
	snapshots := settlement.NewSnapshotStore(db)
	machine := lifecycle.NewMachine(db, settlement.NewEngine(), snapshots)

	// Initialize services
	contestService := services.NewContestService(repo, machine, snapshots)
	templateService := services.NewTemplateService(repo)
	adminService := services.NewAdminService(machine, repo)

	// Initialize handlers
	contestHandler := handlers.NewContestHandler(contestService, templateService)
	adminHandler := handlers.NewAdminHandler(adminService, templateService)

	// Start reconciliation loop
	var reconciler *jobs.Reconciler
	if cfg.Reconcile.Enabled {
		reconciler = jobs.NewReconciler(machine, cfg.Reconcile.Interval)
		if err := reconciler.Start(); err != nil {
			log.Fatalf("Failed to start reconciler: %v", err)
		}
	} else {
		log.Println("Reconciliation loop disabled")
	}

	// Set up Gin router
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handlers.OperatorHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, contestHandler, adminHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if reconciler != nil {
		if err := reconciler.Stop(); err != nil {
			log.Printf("Reconciler shutdown error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
