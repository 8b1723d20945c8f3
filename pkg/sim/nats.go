// NATS telemetry publishing for bench runs
//
// Copyright (C) 2026  Quickshifter Host Project
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sim

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher streams bench samples to a NATS subject so a rig-side
// consumer can chart the run.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// publishedSample is the wire form of one sample.
type publishedSample struct {
	TimeMicros   uint64 `json:"t"`
	RPM          uint16 `json:"rpm"`
	SignalActive bool   `json:"signalActive"`
	CutActive    bool   `json:"cutActive"`
}

// ConnectPublisher dials the NATS server and returns a publisher on
// subject. Reconnects indefinitely in the background.
func ConnectPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("quickshifter-bench"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends one sample. Marshal errors cannot occur for this type;
// publish errors surface so the caller can decide to stop the run.
func (p *Publisher) Publish(s Sample) error {
	payload, err := json.Marshal(publishedSample{
		TimeMicros:   s.TimeMicros,
		RPM:          s.Status.RPM,
		SignalActive: s.Status.SignalActive,
		CutActive:    s.Status.CutActive,
	})
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, payload)
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
