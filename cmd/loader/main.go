// Command loader ingests the CMS inpatient pricing CSV and the zip code
// coordinate CSV into Postgres. The load is truncate-and-reload: re-running
// it replaces the whole dataset.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/carelens/costnav/internal/config"
	"github.com/carelens/costnav/internal/db"
	logpkg "github.com/carelens/costnav/internal/logger"
)

//go:embed schema.sql
var schemaSQL string

func main() {
	_ = godotenv.Load()

	pricesPath := flag.String("prices", "sample_prices_ny.csv", "path to the CMS inpatient pricing CSV")
	zipsPath := flag.String("zips", "zip_lat_lon.csv", "path to the zip code coordinate CSV")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for generated ratings")
	flag.Parse()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	pool, err := db.New(ctx, db.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	loader := &loader{pool: pool, logger: logger, rng: rand.New(rand.NewSource(*seed))}
	if err := loader.Run(ctx, *pricesPath, *zipsPath); err != nil {
		logger.Fatal("Load failed", zap.Error(err))
	}
}

type loader struct {
	pool   *db.Pool
	logger *zap.Logger
	rng    *rand.Rand
}

// priceRecord is one cleaned row of the pricing CSV.
type priceRecord struct {
	providerID              string
	providerName            string
	providerCity            string
	providerState           string
	providerZip             string
	drgID                   int
	drgDefinition           string
	totalDischarges         int
	averageCoveredCharges   float64
	averageTotalPayments    float64
	averageMedicarePayments float64
}

func (l *loader) Run(ctx context.Context, pricesPath, zipsPath string) error {
	if err := l.applySchema(ctx); err != nil {
		return err
	}

	records, skipped, err := readPrices(pricesPath)
	if err != nil {
		return err
	}
	l.logger.Info("Pricing CSV read",
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
	)

	zips, err := readZips(zipsPath)
	if err != nil {
		return err
	}
	l.logger.Info("Zip CSV read", zap.Int("zip_codes", len(zips)))

	tx, err := l.pool.Pgx().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		"TRUNCATE drg_prices, ratings, providers, drgs, zip_codes"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}

	providers, drgs := dedupe(records)

	if err := copyProviders(ctx, tx, providers); err != nil {
		return err
	}
	if err := copyDRGs(ctx, tx, drgs); err != nil {
		return err
	}
	if err := copyPrices(ctx, tx, records); err != nil {
		return err
	}
	if err := l.copyRatings(ctx, tx, providers); err != nil {
		return err
	}
	if err := copyZips(ctx, tx, zips); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	l.logger.Info("Load complete",
		zap.Int("providers", len(providers)),
		zap.Int("drgs", len(drgs)),
		zap.Int("prices", len(records)),
		zap.Int("zip_codes", len(zips)),
	)
	return nil
}

func (l *loader) applySchema(ctx context.Context) error {
	if _, err := l.pool.Pgx().Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// readPrices parses the pricing CSV. Rows with missing keys or unparseable
// numbers are skipped, matching how the dataset is cleaned upstream.
func readPrices(path string) ([]priceRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open pricing CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read pricing header: %w", err)
	}
	col, err := columnIndex(header, []string{
		"provider_id", "provider_name", "provider_city", "provider_state",
		"provider_zip_code", "ms_drg_definition", "total_discharges",
		"average_covered_charges", "average_total_payments", "average_medicare_payments",
	})
	if err != nil {
		return nil, 0, err
	}

	var (
		records []priceRecord
		skipped int
	)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read pricing row: %w", err)
		}

		rec, ok := parsePriceRow(row, col)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parsePriceRow(row []string, col map[string]int) (priceRecord, bool) {
	get := func(name string) string { return strings.TrimSpace(row[col[name]]) }

	rec := priceRecord{
		providerID:    get("provider_id"),
		providerName:  get("provider_name"),
		providerCity:  get("provider_city"),
		providerState: get("provider_state"),
		providerZip:   get("provider_zip_code"),
		drgDefinition: get("ms_drg_definition"),
	}
	if rec.providerID == "" || rec.providerName == "" || rec.drgDefinition == "" {
		return priceRecord{}, false
	}

	drgID, ok := parseDRGID(rec.drgDefinition)
	if !ok {
		return priceRecord{}, false
	}
	rec.drgID = drgID

	var err error
	if rec.totalDischarges, err = strconv.Atoi(get("total_discharges")); err != nil {
		return priceRecord{}, false
	}
	if rec.averageCoveredCharges, err = parseMoney(get("average_covered_charges")); err != nil {
		return priceRecord{}, false
	}
	if rec.averageTotalPayments, err = parseMoney(get("average_total_payments")); err != nil {
		return priceRecord{}, false
	}
	if rec.averageMedicarePayments, err = parseMoney(get("average_medicare_payments")); err != nil {
		return priceRecord{}, false
	}
	return rec, true
}

// parseDRGID extracts the numeric code from definitions like
// "470 - MAJOR JOINT REPLACEMENT ...".
func parseDRGID(definition string) (int, bool) {
	code, _, found := strings.Cut(definition, " - ")
	if !found {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseMoney accepts plain numbers and "$1,234.56" style values.
func parseMoney(s string) (float64, error) {
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

type zipRecord struct {
	zip       string
	latitude  float64
	longitude float64
}

func readZips(path string) ([]zipRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open zip CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read zip header: %w", err)
	}
	col, err := columnIndex(header, []string{"zip_code", "latitude", "longitude"})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var zips []zipRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read zip row: %w", err)
		}

		zip := normalizeZip(strings.TrimSpace(row[col["zip_code"]]))
		if zip == "" {
			continue
		}
		if _, dup := seen[zip]; dup {
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[col["latitude"]]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[col["longitude"]]), 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		seen[zip] = struct{}{}
		zips = append(zips, zipRecord{zip: zip, latitude: lat, longitude: lon})
	}
	return zips, nil
}

// normalizeZip strips a trailing ".0" left by spreadsheet exports and keeps
// only 1-5 digit codes.
func normalizeZip(s string) string {
	s = strings.TrimSuffix(s, ".0")
	if len(s) == 0 || len(s) > 5 {
		return ""
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return s
}

func columnIndex(header, required []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return col, nil
}

// dedupe collects the unique providers (first occurrence wins) and DRG
// definitions referenced by the pricing records.
func dedupe(records []priceRecord) ([]priceRecord, map[int]string) {
	seen := make(map[string]struct{})
	var providers []priceRecord
	drgs := make(map[int]string)

	for _, rec := range records {
		if _, ok := seen[rec.providerID]; !ok {
			seen[rec.providerID] = struct{}{}
			providers = append(providers, rec)
		}
		if _, ok := drgs[rec.drgID]; !ok {
			drgs[rec.drgID] = rec.drgDefinition
		}
	}
	return providers, drgs
}

func copyProviders(ctx context.Context, tx pgx.Tx, providers []priceRecord) error {
	rows := make([][]any, len(providers))
	for i, p := range providers {
		rows[i] = []any{p.providerID, p.providerName, p.providerCity, p.providerState, p.providerZip}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"providers"},
		[]string{"provider_id", "provider_name", "provider_city", "provider_state", "provider_zip_code"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy providers: %w", err)
	}
	return nil
}

func copyDRGs(ctx context.Context, tx pgx.Tx, drgs map[int]string) error {
	rows := make([][]any, 0, len(drgs))
	for id, def := range drgs {
		rows = append(rows, []any{id, def})
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"drgs"},
		[]string{"drg_id", "ms_drg_definition"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy drgs: %w", err)
	}
	return nil
}

func copyPrices(ctx context.Context, tx pgx.Tx, records []priceRecord) error {
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{
			rec.providerID, rec.drgID, rec.totalDischarges,
			rec.averageCoveredCharges, rec.averageTotalPayments, rec.averageMedicarePayments,
		}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"drg_prices"},
		[]string{"provider_id", "drg_id", "total_discharges",
			"average_covered_charges", "average_total_payments", "average_medicare_payments"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy drg_prices: %w", err)
	}
	return nil
}

// copyRatings generates one synthetic 1..10 rating per provider. The source
// dataset has no rating data; the value is only meaningful for filtering.
func (l *loader) copyRatings(ctx context.Context, tx pgx.Tx, providers []priceRecord) error {
	rows := make([][]any, len(providers))
	for i, p := range providers {
		rows[i] = []any{p.providerID, l.rng.Intn(10) + 1}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"ratings"},
		[]string{"provider_id", "rating"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy ratings: %w", err)
	}
	return nil
}

func copyZips(ctx context.Context, tx pgx.Tx, zips []zipRecord) error {
	rows := make([][]any, len(zips))
	for i, z := range zips {
		rows[i] = []any{z.zip, z.latitude, z.longitude}
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"zip_codes"},
		[]string{"zip_code", "latitude", "longitude"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy zip_codes: %w", err)
	}
	return nil
}
