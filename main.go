package main

import (
	"time"

	"go.uber.org/zap"

	"gbserver/auth"
	"gbserver/database"
	"gbserver/game"
	"gbserver/game/balls"
	"gbserver/game/broadcast"
	"gbserver/game/connection"
	"gbserver/game/registry"
	"gbserver/handlers"
	"gbserver/store"
	"gbserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func main() {
	logger, err := utils.InitLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("failed to load config file", zap.Error(err))
	}

	// Initialize PostgreSQL and Redis in parallel.
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		db, err = database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("failed to initialize PostgreSQL", zap.Error(err))
		}
		done <- true
	}()

	go func() {
		rdb, err = database.InitRedis(logger)
		if err != nil {
			logger.Fatal("failed to initialize Redis", zap.Error(err))
		}
		done <- true
	}()

	<-done
	<-done

	records := store.NewGameRecordStore(db, logger)
	ledger := store.NewRedisBalanceLedger(rdb, logger)
	hub := broadcast.NewHub(logger)
	verifier := auth.Verifier{}

	gameCfg := game.DefaultConfig()
	dist := balls.NewDistributor(gameCfg.BallWeights, gameCfg.BallCounts, nil)
	orch := game.New(gameCfg, registry.New(), dist, ledger, records, hub, logger)

	go utils.CronJobs(ledger, db, logger)

	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.POST("/register", handlers.RegisterUser(db, logger))
	router.POST("/login", handlers.LoginUser(db, logger))
	router.GET("/balance", handlers.Balance(ledger, verifier, logger))
	router.GET("/history", handlers.History(records, verifier, logger))
	router.GET("/ws", func(c *gin.Context) {
		connection.HandleConnections(c.Request.Context(), c.Writer, c.Request, verifier, orch, hub, logger)
	})

	if err := router.Run(config.ServerAddr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
