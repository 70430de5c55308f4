/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"context"
	"time"

	"stellar-tipbot-go/internal/models"

	"go.uber.org/zap"
)

// Notifier receives ledger outcomes. Implementations must not block the
// caller past ctx cancellation.
type Notifier interface {
	Notify(ctx context.Context, event models.Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event models.Event)

func (f NotifierFunc) Notify(ctx context.Context, event models.Event) {
	f(ctx, event)
}

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, models.Event) {})

// Fanout delivers each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event models.Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// Stamp fills OccurredAt and Kind when the producer left them empty.
func Stamp(event models.Event) models.Event {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Kind == "" && event.Err != nil {
		event.Kind = models.ErrorKind(event.Err)
	}
	return event
}

// LogNotifier writes every event to the global zap logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event models.Event) {
	fields := []zap.Field{
		zap.String("event", string(event.Type)),
		zap.String("hash", event.Hash),
		zap.String("amount", models.FormatAmount(event.Amount)),
	}
	if event.Account != nil {
		fields = append(fields,
			zap.String("account_id", event.Account.Id),
			zap.String("adapter", event.Account.AdapterName),
			zap.String("external_id", event.Account.ExternalId))
	}
	if event.Target != nil {
		fields = append(fields, zap.String("target_account_id", event.Target.Id))
	}
	if event.Address != "" {
		fields = append(fields, zap.String("address", event.Address))
	}

	if event.Err != nil {
		fields = append(fields, zap.String("kind", event.Kind), zap.Error(event.Err))
		zap.L().Warn("Ledger event", fields...)
		return
	}
	zap.L().Info("Ledger event", fields...)
}
