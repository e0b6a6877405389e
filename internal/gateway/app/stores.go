package app

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"brandkit/internal/gateway/config"
	"brandkit/internal/gateway/handler"
	"brandkit/internal/gateway/repository/kb"
	"brandkit/internal/pipeline"
)

func initStore(cfg *config.Config) (handler.SessionStore, error) {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %w", err)
		}
		log.Printf("kb store: postgres")
		return kb.NewPostgresStore(db), nil
	}
	log.Printf("kb store: in-memory (no DATABASE_URL)")
	return kb.NewMemoryStore(), nil
}

func initMediaStore(cfg *config.Config) (pipeline.MediaStore, error) {
	if cfg.Media.CanUseS3() {
		s3, err := kb.NewS3MediaStore(kb.S3Config{
			Endpoint:  cfg.Media.Endpoint,
			Region:    cfg.Media.Region,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
			Bucket:    cfg.Media.Bucket,
			UseSSL:    cfg.Media.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize media s3 store: %w", err)
		}
		log.Printf("media store: s3 bucket=%s endpoint=%s", cfg.Media.Bucket, cfg.Media.Endpoint)
		return s3, nil
	}
	if cfg.Media.Enabled {
		log.Printf("media store: using in-memory fallback (s3 config incomplete)")
	}
	return kb.NewMemoryMediaStore(), nil
}
