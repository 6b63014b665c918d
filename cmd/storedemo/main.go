// Demonstrates the skip-list store end to end: batch insertion, the volatile LRU's eviction cascade,
// lazy TTL reaping, and a snapshot round-trip.

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/nobletooth/skiplru/pkg/config"
	"github.com/nobletooth/skiplru/pkg/store"
	"github.com/nobletooth/skiplru/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	flag.Parse()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Store demo build info.", "version", utils.Version, "commit", utils.Commit,
			"build", utils.BuildTime)
		return
	}

	cfg := config.FromFlags()
	cfg.LRUCapacity = 3 // Small on purpose, so the eviction cascade below is visible without many keys.

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	s, err := store.New[string](cfg, rnd, time.Now)
	if err != nil {
		slog.Error("Failed to construct store.", "err", err)
		os.Exit(1)
	}

	fmt.Println("--- inserting a batch of persistent keys ---")
	for _, key := range []string{"10", "20", "30", "40", "50"} {
		s.Insert(key, "value-"+key)
	}
	_ = s.Display(os.Stdout)

	fmt.Println("--- arming TTLs on four keys against a 3-slot volatile LRU ---")
	for _, key := range []string{"10", "20", "30", "40"} {
		if err := s.Expire(key, time.Minute); err != nil {
			slog.Error("Expire failed.", "key", key, "err", err)
		}
	}
	fmt.Printf("size after eviction cascade: %d (key 10 should be gone)\n", s.Size())
	if _, found := s.Search("10"); !found {
		fmt.Println("key 10 was cascade-deleted by the volatile LRU, as expected")
	}

	fmt.Println("--- lazy expiry via TTL ---")
	if err := s.Expire("20", time.Second); err != nil {
		slog.Error("Expire failed.", "key", "20", "err", err)
	}
	time.Sleep(2 * time.Second)
	if remaining, outcome := s.TTL("20"); outcome == store.TTLReaped {
		fmt.Println("key 20 was lazily reaped on TTL query")
	} else {
		fmt.Printf("key 20 unexpectedly still alive: %s\n", remaining)
	}

	fmt.Println("--- snapshot round-trip ---")
	if err := s.Dump(); err != nil {
		slog.Error("Dump failed.", "err", err)
		os.Exit(1)
	}
	fresh, err := store.New[string](cfg, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
	if err != nil {
		slog.Error("Failed to construct fresh store.", "err", err)
		os.Exit(1)
	}
	if err := fresh.Load(); err != nil {
		slog.Error("Load failed.", "err", err)
		os.Exit(1)
	}
	fmt.Printf("reloaded store has %d keys\n", fresh.Size())
	_ = fresh.Display(os.Stdout)
}
