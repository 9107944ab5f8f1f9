package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pushwatch/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	driver := flag.String("driver", "", "Override subscriber driver (amqp|nats|kafka|sql|gochannel)")
	flag.Parse()

	log.SetPrefix("pushwatch/worker-example ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		log.Fatalf("load subscriber config: %v", err)
	}
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
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
		worker.WithConcurrency(5),
		worker.WithListener(worker.Listener{
			OnStart: func(ctx context.Context) { log.Println("worker started") },
			OnExit:  func(ctx context.Context) { log.Println("worker stopped") },
			OnError: func(ctx context.Context, evt *worker.Event, err error) {
				log.Printf("worker error: %v", err)
			},
		}),
	)

	wk.Handle(func(ctx context.Context, evt *worker.Event) error {
		if driver := evt.Metadata["driver"]; driver != "" {
			log.Printf("driver=%s topic=%s", driver, evt.Topic)
		}
		log.Printf("push %s@%s touched %d files (frontend=%t deps=%t config=%t container=%t)",
			evt.Repository, evt.Branch, len(evt.ChangedFiles),
			evt.Flags.FrontendAsset, evt.Flags.DependencyManifest,
			evt.Flags.ConfigFile, evt.Flags.ContainerFile)

		if evt.Flags.DependencyManifest {
			log.Printf("intent: reinstall dependencies for %s", evt.Repository)
		}
		if evt.Flags.ContainerFile {
			log.Printf("intent: rebuild the %s image", evt.Repository)
		}
		if evt.Flags.FrontendAsset {
			log.Printf("intent: redeploy static assets for %s", evt.Repository)
		}
		return nil
	})

	if err := wk.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
