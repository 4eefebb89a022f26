// soldeed-events tails the job-board lifecycle topics and prints each event
// as a JSON line, acking after a successful write. It is an operational tool
// for inspecting the event stream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soldeed/soldeed/internal/events"
)

func main() {
	var (
		queueDriver  = flag.String("queue-driver", events.DriverKafka, "queue driver (kafka|stdio)")
		queueBrokers = flag.String("queue-brokers", "", "queue brokers (comma-separated)")
		queueGroup   = flag.String("queue-group", "soldeed-events-tail", "consumer group id")
		topics       = flag.String("topics", strings.Join([]string{
			events.TopicJobCreated,
			events.TopicJobDeleted,
			events.TopicWalletRegistered,
		}, ","), "topics to consume (comma-separated)")
		ackTimeout = flag.Duration("ack-timeout", 10*time.Second, "timeout for committing a consumed message")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if strings.TrimSpace(strings.ToLower(*queueDriver)) == events.DriverKafka && strings.TrimSpace(*queueBrokers) == "" {
		fmt.Fprintln(os.Stderr, "error: --queue-brokers is required with the kafka driver")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := events.NewConsumer(ctx, events.ConsumerConfig{
		Driver:  *queueDriver,
		Brokers: events.SplitCommaList(*queueBrokers),
		Group:   *queueGroup,
		Topics:  events.SplitCommaList(*topics),
	})
	if err != nil {
		log.Error("init queue consumer", "err", err)
		os.Exit(2)
	}
	defer consumer.Close()

	enc := json.NewEncoder(os.Stdout)
	log.Info("soldeed-events tailing", "driver", *queueDriver, "topics", *topics)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown", "reason", ctx.Err())
			return
		case err, ok := <-consumer.Errors():
			if !ok {
				return
			}
			log.Error("consume error", "err", err)
		case msg, ok := <-consumer.Messages():
			if !ok {
				return
			}
			line := map[string]any{
				"topic":     msg.Topic,
				"key":       string(msg.Key),
				"timestamp": msg.Timestamp.UTC().Format(time.RFC3339Nano),
				"payload":   json.RawMessage(msg.Value),
			}
			if !json.Valid(msg.Value) {
				line["payload"] = string(msg.Value)
			}
			if err := enc.Encode(line); err != nil {
				log.Error("write event", "err", err)
				continue
			}
			ackCtx, cancel := context.WithTimeout(ctx, *ackTimeout)
			if err := msg.Ack(ackCtx); err != nil {
				log.Error("ack event", "err", err, "topic", msg.Topic)
			}
			cancel()
		}
	}
}
