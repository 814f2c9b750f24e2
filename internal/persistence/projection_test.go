package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
)

func TestNodeProjectionPersistsPublishedSnapshots(t *testing.T) {
	repo := NewNodeRepo(openTestDB(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(logger)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewWriterQueue(logger, 16)
	queue.Start(ctx)
	StartNodeProjection(ctx, b, queue, repo)
	time.Sleep(20 * time.Millisecond)

	now := time.Now()
	b.Publish(events.TopicNodeInfo, domain.NodeInfo{
		NodeNum:   0x0A0B0C0D,
		LongName:  "Valley Gate",
		ShortName: "VG",
		LastHeard: now,
		UpdatedAt: now,
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := repo.Get(ctx, 0x0A0B0C0D)
		if err == nil {
			if got.LongName != "Valley Gate" || got.ShortName != "VG" {
				t.Fatalf("snapshot mangled on the way to the store: %+v", got)
			}

			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("published node snapshot never reached the store: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNodeProjectionIgnoresForeignPayloads(t *testing.T) {
	repo := NewNodeRepo(openTestDB(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(logger)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewWriterQueue(logger, 16)
	queue.Start(ctx)
	StartNodeProjection(ctx, b, queue, repo)
	time.Sleep(20 * time.Millisecond)

	b.Publish(events.TopicNodeInfo, "not a node")
	time.Sleep(50 * time.Millisecond)

	nodes, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("foreign payload stored: %+v", nodes)
	}
}
