package utils

import (
	"os"

	"github.com/joho/godotenv"
)

// must run before the vars below are evaluated, a missing .env is fine
var _ = godotenv.Load()

var (
	PG_DSN = os.Getenv("PG_DSN")

	BENCH_TABLE       = GetEnvOrDefault("BENCH_TABLE", "test1")
	BENCH_ROWS        = GetEnvOrDefaultInt("BENCH_ROWS", 2_000_000)
	BENCH_THREADS     = GetEnvOrDefaultInt("BENCH_THREADS", 0)
	FETCH_BATCH_SIZE  = GetEnvOrDefaultInt("FETCH_BATCH_SIZE", 200)
	SEED_TEXT_COLUMNS = GetEnvOrDefaultInt("SEED_TEXT_COLUMNS", 50)

	AWS_ACCESS_KEY_ID     = os.Getenv("AWS_ACCESS_KEY_ID")
	AWS_SECRET_ACCESS_KEY = os.Getenv("AWS_SECRET_ACCESS_KEY")
	AWS_DEFAULT_REGION    = GetEnvOrDefault("AWS_DEFAULT_REGION", "us-east-1")

	S3_BUCKET_NAME = os.Getenv("S3_BUCKET_NAME")
	S3_ENDPOINT    = os.Getenv("S3_ENDPOINT")

	REPORT_DIR = os.Getenv("REPORT_DIR")
)
