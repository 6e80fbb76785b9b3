package client_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
	"github.com/hello3x3/SwarmRescueUI/pkg/client"
)

// Example shows a full remote-controlled run: initialize a swarm,
// watch the event stream, and auto-step until the run finishes.
func Example() {
	ctx := context.Background()
	c := client.New("http://localhost:8080")

	snap, err := c.Initialize(ctx,
		client.WithAlgorithm(sim.ModeCRMGC),
		client.WithDestroyCount(50),
	)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("swarm ready: %d agents\n", len(snap.Remain))

	events, err := c.Subscribe(ctx)
	if err != nil {
		log.Fatal(err)
	}

	if err := c.Start(ctx); err != nil {
		log.Fatal(err)
	}

	for ev := range events {
		switch ev.Type {
		case sim.EventLog:
			fmt.Println(ev.Payload)
		case sim.EventButtonState:
			if ev.Payload == "Start" {
				// The run finished and the server is idle again.
				return
			}
		}
	}
}

// ExampleClient_Step drives the simulation manually, one step at a time.
func ExampleClient_Step() {
	ctx := context.Background()
	c := client.New("http://localhost:8080")

	if _, err := c.Initialize(ctx, client.WithDestroyCount(30)); err != nil {
		log.Fatal(err)
	}

	for {
		snap, err := c.Step(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if snap.Connected {
			fmt.Printf("reconnected after %d steps\n", snap.StepCount)
			break
		}
	}
}
