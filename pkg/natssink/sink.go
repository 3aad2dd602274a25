// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natssink implements aggregation.Sink by publishing each
// aggregate, line-protocol encoded, to a NATS subject.
package natssink

import (
	"fmt"

	"github.com/ClusterCockpit/cc-metrics-agg/pkg/aggregation"
)

// publisher is the subset of *nats.Client that Sink depends on, so tests
// can substitute a fake without a live NATS connection.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Sink publishes aggregates to a single NATS subject via the process-wide
// nats.Client.
type Sink struct {
	client  publisher
	subject string
}

// New returns a Sink publishing to subject via client. client is typically
// obtained once at startup via nats.GetClient() after nats.Connect().
func New(client publisher, subject string) *Sink {
	return &Sink{client: client, subject: subject}
}

// Publish implements aggregation.Sink.
func (s *Sink) Publish(agg aggregation.Aggregate) error {
	if s.client == nil {
		return fmt.Errorf("natssink: no NATS client configured")
	}
	data, err := aggregation.EncodeLineProtocol(agg)
	if err != nil {
		return fmt.Errorf("natssink: encode metric %q: %w", agg.MetricID, err)
	}
	return s.client.Publish(s.subject, data)
}
