package config

import (
	"time"

	"github.com/hyperjump/katachi/internal/extract"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "/usr/local/etc/katachi/config.yaml"

const dataRoot = "/usr/local/var/katachi/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestsPerSecond > 0 && cfg.Server.Burst == 0 {
		cfg.Server.Burst = int(cfg.Server.RequestsPerSecond) + 1
	}
	if cfg.Features.Directory == "" {
		cfg.Features.Directory = dataRoot + "/features"
	}
	if len(cfg.Features.Splits) == 0 {
		cfg.Features.Splits = []SplitConfig{
			{Name: "train", ImageDir: dataRoot + "/images/train"},
			{Name: "test", ImageDir: dataRoot + "/images/test"},
			{Name: "val", ImageDir: dataRoot + "/images/val"},
		}
	}
	if cfg.Features.Extensions == nil {
		cfg.Features.Extensions = []string{".jpg", ".jpeg", ".png"}
	}
	if cfg.Features.MaxPixels == 0 {
		cfg.Features.MaxPixels = extract.DefaultMaxPixels
	}
	if cfg.Features.MaxAspectRatio == 0 {
		cfg.Features.MaxAspectRatio = extract.DefaultMaxAspectRatio
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = dataRoot + "/models/clip-vit-base-patch32-vision.onnx"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "openai/clip-vit-base-patch32"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 100
	}
	if cfg.Storage.LedgerPath == "" {
		cfg.Storage.LedgerPath = dataRoot + "/db/ledger.db"
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 2000
	}
	if cfg.Catalog.RawPath == "" {
		cfg.Catalog.RawPath = dataRoot + "/catalog/raw.json"
	}
	if cfg.Catalog.StagePath == "" {
		cfg.Catalog.StagePath = dataRoot + "/catalog/stage.csv"
	}
	if cfg.Catalog.FinalPath == "" {
		cfg.Catalog.FinalPath = dataRoot + "/catalog/final.parquet"
	}
	if cfg.Catalog.ScheduleInterval == 0 {
		cfg.Catalog.ScheduleInterval = 24 * time.Hour
	}
}
