package main

import (
	"bytes"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"pushwatch/internal"
)

// Delivers a payload file to a running receiver, signed the way GitHub signs
// webhook deliveries. Useful for poking at a local instance without a tunnel.
func main() {
	url := flag.String("url", "http://localhost:8080/webhooks/github", "Receiver endpoint")
	payloadPath := flag.String("payload", "", "Path to the JSON payload to deliver")
	secret := flag.String("secret", os.Getenv("PUSHWATCH_SECRET"), "Webhook secret (defaults to $PUSHWATCH_SECRET)")
	event := flag.String("event", "push", "Event name for X-GitHub-Event")
	flag.Parse()

	log.SetPrefix("pushwatch/sender ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *payloadPath == "" {
		log.Fatal("a -payload file is required")
	}
	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		log.Fatalf("read payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", *event)
	req.Header.Set("X-GitHub-Delivery", watermill.NewUUID())
	if *secret != "" {
		req.Header.Set("X-Hub-Signature-256", internal.Sign([]byte(*secret), payload))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("deliver: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}
	log.Printf("%s %s", resp.Status, bytes.TrimSpace(body))
}
