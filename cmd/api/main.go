package main

import (
	"context"
	"net/http"

	"location-dedupe/internal/config"
	"location-dedupe/internal/handler"
	"location-dedupe/internal/logging"
	"location-dedupe/internal/match"
	"location-dedupe/internal/repository"
	"location-dedupe/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	config, err := config.LoadConfig("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	logging.Setup(config.LogLevel, config.LogPretty)

	// Database connection
	conn, err := repository.Connect(context.Background(), config.DBSource, config.ConnectAttempts)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to db")
	}
	defer conn.Close()

	// Initialize layers. The API only ever reads, so no merger is wired.
	repo := repository.NewRepository(conn)

	dedupeService := service.NewDedupeService(repo, match.NewEngine(config.Rules()), nil, 1)
	tenantService := service.NewTenantService(repo)

	duplicatesHandler := handler.NewDuplicatesHandler(dedupeService)
	tenantsHandler := handler.NewTenantsHandler(tenantService)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	r.GET("/duplicates", duplicatesHandler.ListDuplicates)
	r.GET("/locations/:id/tenants", tenantsHandler.ListTenants)

	if err := r.Run(config.ServerAddress); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}
