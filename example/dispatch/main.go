package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"pushwatch/pkg/worker"
)

// Turns interesting pushes into repository_dispatch events, so GitHub Actions
// workflows in the pushed repository can react to the classification. Without
// a token the worker only logs what it would dispatch.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	token := flag.String("token", os.Getenv("PUSHWATCH_GITHUB_TOKEN"), "GitHub token (defaults to $PUSHWATCH_GITHUB_TOKEN)")
	eventType := flag.String("event-type", "pushwatch", "repository_dispatch event type")
	flag.Parse()

	log.SetPrefix("pushwatch/dispatch-worker ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var client *gh.Client
	if *token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: *token})
		client = gh.NewClient(oauth2.NewClient(ctx, ts))
	}

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		log.Fatalf("load subscriber config: %v", err)
	}
	topics, err := worker.LoadTopicsFromConfig(*configPath)
	if err != nil {
		log.Fatalf("load topics: %v", err)
	}

	sub, err := worker.BuildSubscriber(subCfg)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("subscriber close: %v", err)
		}
	}()

	wk := worker.New(
		worker.WithSubscriber(sub),
		worker.WithTopics(topics...),
		worker.WithConcurrency(2),
		worker.WithListener(worker.Listener{
			OnError: func(ctx context.Context, evt *worker.Event, err error) {
				log.Printf("worker error: %v", err)
			},
		}),
	)

	wk.Handle(func(ctx context.Context, evt *worker.Event) error {
		if !evt.Flags.Any() {
			return nil
		}
		parts := strings.SplitN(evt.Repository, "/", 2)
		if len(parts) != 2 {
			log.Printf("intent: no owner/repo in %q", evt.Repository)
			return nil
		}
		if client == nil {
			log.Printf("intent: dispatch %s to %s@%s (no token configured)", *eventType, evt.Repository, evt.Branch)
			return nil
		}

		payload := json.RawMessage(evt.Payload)
		_, _, err := client.Repositories.Dispatch(ctx, parts[0], parts[1], gh.DispatchRequestOptions{
			EventType:     *eventType,
			ClientPayload: &payload,
		})
		if err != nil {
			return err
		}
		log.Printf("dispatched %s for %s@%s", *eventType, evt.Repository, evt.Branch)
		return nil
	})

	if err := wk.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
