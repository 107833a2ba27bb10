// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Domain holds the business-level instruments shared by the services.
// A nil *Domain is valid and records nothing.
type Domain struct {
	gateDecisions metric.Int64Counter
	membershipOps metric.Int64Counter
	invitesQueued metric.Int64Counter
	onboarding    metric.Int64Counter
}

// New creates the domain instruments from the global meter provider
func New(cfg Config, serviceName string) (*Domain, error) {
	var meter metric.Meter
	if cfg.Enabled {
		meter = otel.Meter(serviceName)
	} else {
		meter = noop.NewMeterProvider().Meter(serviceName)
	}
	return NewWithMeter(meter)
}

// NewWithMeter creates the domain instruments on an explicit meter
func NewWithMeter(meter metric.Meter) (*Domain, error) {
	var d Domain
	var err error

	if d.gateDecisions, err = counter(meter, "gate.decisions", "Onboarding gate decisions by outcome"); err != nil {
		return nil, err
	}
	if d.membershipOps, err = counter(meter, "membership.operations", "Membership lifecycle operations by kind and result"); err != nil {
		return nil, err
	}
	if d.invitesQueued, err = counter(meter, "membership.invites.queued", "Invitation notifications handed to the mail outbox"); err != nil {
		return nil, err
	}
	if d.onboarding, err = counter(meter, "onboarding.steps", "Completed onboarding steps"); err != nil {
		return nil, err
	}
	return &d, nil
}

func counter(meter metric.Meter, name, description string) (metric.Int64Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return c, nil
}

// GateDecision counts one gate evaluation
func (d *Domain) GateDecision(ctx context.Context, outcome string) {
	if d == nil {
		return
	}
	d.gateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// MembershipOp counts one lifecycle operation
func (d *Domain) MembershipOp(ctx context.Context, op, result string) {
	if d == nil {
		return
	}
	d.membershipOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

// InviteQueued counts one queued invitation
func (d *Domain) InviteQueued(ctx context.Context, ok bool) {
	if d == nil {
		return
	}
	d.invitesQueued.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

// OnboardingStep counts one completed wizard step
func (d *Domain) OnboardingStep(ctx context.Context, step string) {
	if d == nil {
		return
	}
	d.onboarding.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}
