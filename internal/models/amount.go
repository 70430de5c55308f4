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

package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits of the native asset (stroops).
const AmountScale = 7

// ZeroAmount is the canonical zero balance string.
var ZeroAmount = FormatAmount(decimal.Zero)

// RoundAmount normalizes d to AmountScale fractional digits.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// FormatAmount renders d as a fixed 7-digit string, e.g. "6.0000000".
func FormatAmount(d decimal.Decimal) string {
	return RoundAmount(d).StringFixed(AmountScale)
}

// ParseAmount parses a decimal string and normalizes it to AmountScale.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return RoundAmount(d), nil
}

// ParsePositiveAmount parses s and rejects zero or negative values.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be greater than zero", ErrInvalidAmount, FormatAmount(d))
	}
	return d, nil
}

// ToStroops converts an amount to its integer smallest-unit representation.
func ToStroops(d decimal.Decimal) string {
	return RoundAmount(d).Shift(AmountScale).BigInt().String()
}
