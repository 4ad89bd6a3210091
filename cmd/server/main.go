package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"campusnet/internal/auth"
	"campusnet/internal/community"
	"campusnet/internal/config"
	"campusnet/internal/database"
	"campusnet/internal/email"
	"campusnet/internal/logging"
	redisx "campusnet/internal/redis"
	"campusnet/internal/server"
	"campusnet/internal/storage"
)

const (
	logMaxSize    = 20 << 20
	logMaxBackups = 5
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		rotating, err := logging.NewFileWriter(cfg.LogFile, logMaxSize, logMaxBackups)
		if err != nil {
			log.Fatalf("log setup error: %v", err)
		}
		defer rotating.Close()
		logOutput = io.MultiWriter(os.Stdout, rotating)
	}
	log.SetOutput(logOutput)
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lshortfile)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer db.Close()

	redisClient, err := redisx.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	defer redisClient.Close()

	images, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("upload dir error: %v", err)
	}

	store := auth.NewRepository(db)
	codec := auth.NewTokenCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	service := auth.NewService(store, codec, auth.NewBcryptHasher())
	rateLimiter := &auth.RateLimiter{Redis: redisClient}
	audit := &auth.AuditLogger{Redis: redisClient, MaxLen: 1000}
	mailer := email.NewSender(cfg.Email)
	comm := community.NewRepository(db)

	api := server.NewServer(cfg, service, store, comm, rateLimiter, audit, redisClient, mailer, images)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	log.Printf("Listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
