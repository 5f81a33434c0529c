// Command catalog-ingest loads gzip-compressed product feed files (one JSON
// document per line) into the catalog. Feeds from suppliers overlap and
// repeat ids; the first occurrence of an id wins, matching catalog lookup
// order, and later duplicates are dropped.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/freshness"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

// feedProduct is one line of a supplier feed.
type feedProduct struct {
	id          string
	title       string
	description string
	price       decimal.Decimal
	image       string
	quantity    int64
}

// fileResult holds the products parsed from a single feed file, in feed
// order. Dedup happens later, serially, so first-wins stays deterministic.
type fileResult struct {
	products []feedProduct
	skipped  uint64
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}

	slog.Info("parsing feed files", slog.Int("files", len(files)))

	results, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	written, err := writeProducts(ctx, postgres.NewProductRepository(pool), files, results)
	if err != nil {
		return errors.Wrap(err, "write products")
	}

	if written > 0 {
		if err := postgres.NewFreshnessRepository(pool).Touch(ctx, freshness.TypeProducts, ""); err != nil {
			return errors.Wrap(err, "touch products marker")
		}
	}

	slog.Info("catalog written", slog.Int("products", written))
	return nil
}

// parseFeeds decompresses and parses every feed concurrently, one goroutine
// per file.
func parseFeeds(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFeedFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func parseFeedFile(ctx context.Context, idx int, path string, results []fileResult) func() error {
	return func() error {
		var (
			products []feedProduct
			skipped  uint64
			count    uint64
		)

		if err := streamGzFile(ctx, path, func(line []byte) {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("lines", count),
				)
			}

			p, err := parseFeedLine(line)
			if err != nil {
				// Feed quality varies; a broken line is the supplier's
				// problem, not a reason to abort the ingest.
				skipped++
				return
			}
			products = append(products, p)
		}); err != nil {
			return errors.Wrapf(err, "parse feed %s", path)
		}

		slog.Info("parse complete",
			slog.String("file", filepath.Base(path)),
			slog.Int("products", len(products)),
			slog.Uint64("skipped_lines", skipped),
		)

		results[idx] = fileResult{products: products, skipped: skipped}
		return nil
	}
}

// parseFeedLine decodes one feed line. Unknown fields are ignored; id, title
// and price are required.
func parseFeedLine(line []byte) (feedProduct, error) {
	var (
		p   feedProduct
		d   = jx.DecodeBytes(line)
		err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "id":
				v, err := d.Str()
				p.id = v
				return err
			case "title":
				v, err := d.Str()
				p.title = v
				return err
			case "description":
				v, err := d.Str()
				p.description = v
				return err
			case "price":
				raw, err := d.Raw()
				if err != nil {
					return err
				}
				v, err := decimal.NewFromString(unquote(raw))
				p.price = v
				return err
			case "image":
				v, err := d.Str()
				p.image = v
				return err
			case "quantity":
				v, err := d.Int64()
				p.quantity = v
				return err
			default:
				return d.Skip()
			}
		})
	)
	if err != nil {
		return feedProduct{}, err
	}
	if p.id == "" || p.title == "" {
		return feedProduct{}, errors.New("missing id or title")
	}
	if p.price.IsNegative() {
		return feedProduct{}, errors.New("negative price")
	}
	return p, nil
}

// unquote strips surrounding JSON quotes so prices may come as either a
// number or a string.
func unquote(raw jx.Raw) string {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts upserts parsed products serially in file order, deduplicating
// ids with a bloom filter so the first occurrence wins. A bloom false
// positive drops a product; at the configured rate that is cheaper than
// holding every id in memory for a multi-million line feed set.
func writeProducts(ctx context.Context, repo product.Repository, files []string, results []fileResult) (int, error) {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	written := 0

	for i, r := range results {
		name := filepath.Base(files[i])
		slog.Info("writing feed", slog.String("file", name), slog.Int("products", len(r.products)))

		for _, fp := range r.products {
			if seen.TestAndAddString(fp.id) {
				continue
			}

			if err := repo.Upsert(ctx, &product.Product{
				ID:          fp.id,
				Title:       fp.title,
				Description: fp.description,
				Price:       fp.price,
				Image:       fp.image,
				Quantity:    fp.quantity,
			}); err != nil {
				return written, errors.Wrapf(err, "upsert product %s", fp.id)
			}
			written++

			if written%progressEvery == 0 {
				slog.Info("write progress", slog.Int("written", written))
			}
		}
	}

	return written, nil
}
