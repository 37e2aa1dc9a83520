// Command loadgen replays synthetic card transaction traffic against a
// running riskline server.
//
// Each simulated user gets a stable spending profile (home city, a handful
// of regular merchants, a usual payment method and a typical ticket size).
// Most traffic stays inside that profile; a configurable fraction switches
// to fraud bursts that spike velocity, amount and location at once, which
// is the pattern the scorer is supposed to surface.
//
// Usage:
//
//	go run ./cmd/loadgen                                  # 20 users, 60s, localhost
//	go run ./cmd/loadgen -users 100 -duration 300 -fraud-rate 0.05
//	go run ./cmd/loadgen -server http://riskline:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/riskline/riskline/pkg/riskclient"
)

// flaggedScore matches the server's default alert threshold.
const flaggedScore = 0.8

type flags struct {
	Users           int
	DurationSeconds int
	Concurrency     int
	FraudRate       float64
	Server          string
	Seed            uint64
}

func parseFlags() flags {
	var f flags

	flag.IntVar(&f.Users, "users", 20, "Number of users to simulate")
	flag.IntVar(&f.DurationSeconds, "duration", 60, "Duration of the run in seconds")
	flag.IntVar(&f.Concurrency, "concurrency", 4, "Number of concurrent senders")
	flag.Float64Var(&f.FraudRate, "fraud-rate", 0.1, "Fraction of scenarios that are fraud bursts (0.0 - 1.0)")
	flag.StringVar(&f.Server, "server", "http://localhost:8080", "Base URL of the riskline server")
	flag.Uint64Var(&f.Seed, "seed", 1, "Random seed, same seed replays the same traffic")

	flag.Parse()

	if f.Users < 1 {
		log.Fatal("-users must be at least 1")
	}
	if f.Concurrency < 1 {
		log.Fatal("-concurrency must be at least 1")
	}
	if f.FraudRate < 0.0 || f.FraudRate > 1.0 {
		log.Fatal("-fraud-rate must be between 0.0 and 1.0")
	}

	return f
}

// profile is the stable identity of one simulated user. Routine traffic is
// drawn from it so that the server can build a meaningful baseline.
type profile struct {
	ID            string
	Home          string
	Merchants     []string
	PaymentMethod string
	TypicalAmount float64
}

func newProfile(faker *gofakeit.Faker, index int) *profile {
	merchants := make([]string, faker.Number(3, 6))
	for i := range merchants {
		merchants[i] = faker.Company()
	}

	return &profile{
		ID:            fmt.Sprintf("user_%04d", index),
		Home:          fmt.Sprintf("%s, %s", faker.City(), faker.Country()),
		Merchants:     merchants,
		PaymentMethod: faker.RandomString([]string{"visa", "mastercard", "amex", "apple_pay", "bank_transfer"}),
		TypicalAmount: faker.Price(8, 220),
	}
}

type stats struct {
	sent    atomic.Int64
	failed  atomic.Int64
	flagged atomic.Int64
}

type generator struct {
	faker  *gofakeit.Faker
	client *riskclient.Client
	stats  *stats
}

// runScenario plays one episode for the given user: either a single routine
// purchase or a fraud burst.
func (g *generator) runScenario(ctx context.Context, p *profile, fraudRate float64) {
	if g.faker.Float64Range(0, 1) < fraudRate {
		g.runFraudBurst(ctx, p)
		return
	}
	g.runRoutinePurchase(ctx, p)
}

func (g *generator) runRoutinePurchase(ctx context.Context, p *profile) {
	g.send(ctx, riskclient.Transaction{
		UserID:        p.ID,
		TransactionID: uuid.NewString(),
		Amount:        p.TypicalAmount * g.faker.Float64Range(0.5, 1.6),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Merchant:      g.faker.RandomString(p.Merchants),
		Location:      p.Home,
		PaymentMethod: p.PaymentMethod,
	})
}

// runFraudBurst fires a short run of large transactions from an unfamiliar
// location through an unfamiliar merchant, back to back.
func (g *generator) runFraudBurst(ctx context.Context, p *profile) {
	abroad := fmt.Sprintf("%s, %s", g.faker.City(), g.faker.Country())
	merchant := g.faker.Company()
	method := g.faker.RandomString([]string{"prepaid_card", "crypto", "wire_transfer"})

	for i := 0; i < g.faker.Number(3, 6); i++ {
		g.send(ctx, riskclient.Transaction{
			UserID:        p.ID,
			TransactionID: uuid.NewString(),
			Amount:        g.faker.Price(900, 7500),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			Merchant:      merchant,
			Location:      abroad,
			PaymentMethod: method,
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(g.faker.Number(20, 80)) * time.Millisecond):
		}
	}
}

func (g *generator) send(ctx context.Context, tx riskclient.Transaction) {
	result, err := g.client.Score(ctx, tx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("score failed: %v user=%s", err, tx.UserID)
		}
		g.stats.failed.Add(1)
		return
	}

	g.stats.sent.Add(1)
	if result.Score >= flaggedScore {
		g.stats.flagged.Add(1)
	}
}

func main() {
	cfg := parseFlags()

	faker := gofakeit.New(int64(cfg.Seed))
	profiles := make([]*profile, cfg.Users)
	for i := range profiles {
		profiles[i] = newProfile(faker, i)
	}

	log.Printf("starting load: users=%d duration=%ds concurrency=%d fraud_rate=%.2f server=%s",
		cfg.Users, cfg.DurationSeconds, cfg.Concurrency, cfg.FraudRate, cfg.Server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DurationSeconds)*time.Second)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := &stats{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			// Each worker owns a faker so sequences stay deterministic
			// under any interleaving.
			g := &generator{
				faker:  gofakeit.New(int64(cfg.Seed + uint64(worker) + 1)),
				client: riskclient.NewClient(cfg.Server),
				stats:  st,
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				p := profiles[g.faker.Number(0, len(profiles)-1)]
				g.runScenario(ctx, p, cfg.FraudRate)

				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(g.faker.Number(50, 400)) * time.Millisecond):
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Printf("progress: sent=%d failed=%d flagged=%d",
				st.sent.Load(), st.failed.Load(), st.flagged.Load())
		case <-done:
			elapsed := time.Since(start)
			sent := st.sent.Load()
			rate := float64(sent) / elapsed.Seconds()
			log.Printf("done: sent=%d failed=%d flagged=%d elapsed=%s rate=%.1f/s",
				sent, st.failed.Load(), st.flagged.Load(), elapsed.Round(time.Second), rate)
			return
		}
	}
}
