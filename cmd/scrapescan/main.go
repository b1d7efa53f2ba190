// Command scrapescan demonstrates the tracker package: it scrapes a fixed
// list of trackers for a fixed list of infohashes concurrently and prints
// the aggregated seeder/leecher counts.
package main

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prxssh/scrape/internal/config"
	"github.com/prxssh/scrape/internal/tracker"
	"github.com/prxssh/scrape/pkg/logging"
	"github.com/prxssh/scrape/pkg/retry"
)

func setupLogger() *slog.Logger {
	handler := logging.NewPrettyHandler(os.Stdout, nil)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func main() {
	log := setupLogger()
	config.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	trackers := []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"https://tracker.example.org:443/announce",
	}
	infohashes := []tracker.Infohash{
		mustInfohash("2b66980093bc11806fab50cb3cb41835b95a047"),
	}

	factory := tracker.NewSessionFactory(tracker.NewTxRegistry())

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan map[string]tracker.ResultMap, len(trackers))

	for _, url := range trackers {
		url := url
		g.Go(func() error {
			result, err := scrapeWithRetry(gctx, log, factory, url, infohashes)
			if err != nil {
				log.Warn("scrape failed", "tracker", url, "error", err)
				return nil // one tracker failing doesn't abort the others
			}
			results <- map[string]tracker.ResultMap{url: result}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	for r := range results {
		for url, rm := range r {
			for h, sl := range rm {
				log.Info("scrape result",
					"tracker", url,
					"infohash", h.String(),
					"seeders", sl.Seeders,
					"leechers", sl.Leechers,
				)
			}
		}
	}

	if err := g.Wait(); err != nil {
		log.Error("scan aborted", "error", err)
		os.Exit(1)
	}
}

// scrapeWithRetry builds a session for url, adds every infohash, and
// retries Connect according to the session's own retry policy — the
// external-scheduler role spec.md leaves unspecified.
func scrapeWithRetry(
	ctx context.Context,
	log *slog.Logger,
	factory *tracker.SessionFactory,
	url string,
	infohashes []tracker.Infohash,
) (tracker.ResultMap, error) {
	session, err := factory.Create(url)
	if err != nil {
		return nil, err
	}
	defer session.Cleanup()

	for _, h := range infohashes {
		if !session.CanAddRequest() {
			break
		}
		session.AddRequest(h)
	}

	var result tracker.ResultMap

	opts := retry.WithExponentialBackoff(
		session.MaxRetries()+1,
		session.RetryInterval(),
		5*time.Minute,
	)
	opts = append(opts, retry.WithOnRetry(func(attempt int, err error, next time.Duration) {
		log.Debug("retrying scrape", "tracker", url, "attempt", attempt, "error", err, "next", next)
	}))

	err = retry.Do(ctx, func(ctx context.Context) error {
		r, err := session.Connect(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, opts...)

	return result, err
}

func mustInfohash(hexStr string) tracker.Infohash {
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != len(tracker.Infohash{}) {
		panic("scrapescan: bad infohash literal " + hexStr)
	}
	var h tracker.Infohash
	copy(h[:], raw)
	return h
}
