//go:build ignore

// Package main generates synthetic record batches for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -batches 20 -records 500 -output testdata/bench
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numBatches = flag.Int("batches", 20, "Number of batch files to generate")
	numRecords = flag.Int("records", 500, "Number of records per batch")
	numTopics  = flag.Int("topics", 25, "Number of distinct topics across the corpus")
	outputDir  = flag.String("output", "testdata/bench", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Topic vocabularies. Records cluster around these so frequency extraction
// produces a predictable number of dominant subjects per batch.
var topicCores = [][]string{
	{"kubernetes", "deployment", "rollout", "canary", "helm"},
	{"postgres", "vacuum", "autovacuum", "bloat", "checkpoint"},
	{"redis", "eviction", "keyspace", "persistence", "sentinel"},
	{"kafka", "partitions", "consumer", "offsets", "rebalance"},
	{"nginx", "ingress", "upstream", "certificates", "proxy"},
	{"terraform", "provider", "drift", "workspace", "modules"},
	{"prometheus", "scrape", "cardinality", "alerting", "histogram"},
	{"grafana", "dashboard", "panels", "datasource", "annotations"},
	{"vault", "secrets", "leases", "unseal", "policies"},
	{"airflow", "dags", "scheduler", "backfill", "operators"},
}

// Filler words keep token frequencies from being purely topical.
var fillerWords = []string{
	"notes", "review", "draft", "failed", "incident", "yesterday",
	"meeting", "summary", "question", "followup", "blocked", "resolved",
	"investigating", "migration", "upgrade", "regression", "timeouts",
	"production", "staging", "oncall",
}

type record struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	topics := buildTopics(*numTopics)

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d batches of %d records in %s...\n", *numBatches, *numRecords, *outputDir)

	written := 0
	for i := 0; i < *numBatches; i++ {
		name := fmt.Sprintf("batch-%04d.jsonl", i)
		if err := writeBatch(rng, filepath.Join(*outputDir, name), i, topics); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, err)
			continue
		}
		written++
	}

	fmt.Printf("Generated %d batch files successfully.\n", written)
}

// buildTopics returns n topic vocabularies, extending the base cores with
// numbered variants once they run out.
func buildTopics(n int) [][]string {
	topics := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		core := topicCores[i%len(topicCores)]
		if i < len(topicCores) {
			topics = append(topics, core)
			continue
		}
		variant := make([]string, len(core))
		for j, w := range core {
			variant[j] = fmt.Sprintf("%s%d", w, i/len(topicCores))
		}
		topics = append(topics, variant)
	}
	return topics
}

// writeBatch writes one .jsonl file whose records cluster around a handful
// of the corpus topics.
func writeBatch(rng *rand.Rand, path string, batch int, topics [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)

	// Each batch leans on a few topics so extraction has dominant keyword
	// sets to latch onto.
	batchTopics := make([][]string, 2+rng.Intn(3))
	for i := range batchTopics {
		batchTopics[i] = topics[rng.Intn(len(topics))]
	}

	for i := 0; i < *numRecords; i++ {
		topic := batchTopics[rng.Intn(len(batchTopics))]
		rec := record{
			ID:   fmt.Sprintf("batch%d-r%d", batch, i),
			Text: recordText(rng, topic),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// recordText builds a sentence dominated by topic vocabulary with filler
// mixed in so token frequencies look natural.
func recordText(rng *rand.Rand, topic []string) string {
	words := make([]string, 0, 12)

	// Core words first so they dominate the frequency counts.
	words = append(words, topic[:3]...)
	for i := 0; i < 2+rng.Intn(3); i++ {
		words = append(words, topic[rng.Intn(len(topic))])
	}
	for i := 0; i < 3+rng.Intn(4); i++ {
		words = append(words, fillerWords[rng.Intn(len(fillerWords))])
	}

	rng.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
	return strings.Join(words, " ")
}
