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

package database

const (
	// Idempotency ledger queries
	queryInsertKey = `
		INSERT INTO idempotency_keys (key, status) VALUES (?, 'in_flight')
		ON CONFLICT(key) DO NOTHING`

	queryGetKeyStatus = `
		SELECT status FROM idempotency_keys WHERE key = ?`

	queryCompleteKey = `
		UPDATE idempotency_keys
		SET status = 'completed', completed_at = CURRENT_TIMESTAMP
		WHERE key = ? AND status = 'in_flight'`

	queryReleaseKey = `
		DELETE FROM idempotency_keys WHERE key = ? AND status = 'in_flight'`

	// Mint order queries
	queryInsertMintOrder = `
		INSERT INTO mint_orders (id, destination, fiat_amount, currency, state)
		VALUES (?, ?, ?, ?, ?)`

	queryGetMintOrder = `
		SELECT id, destination, fiat_amount, currency, capture_id, captured_amount,
		       token_amount, mint_tx_hash, refund_id, state, failure_reason,
		       created_at, updated_at
		FROM mint_orders
		WHERE id = ?`

	queryMarkOrderCaptured = `
		UPDATE mint_orders
		SET state = ?, capture_id = ?, captured_amount = ?, token_amount = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state IN (?, ?)`

	queryMarkOrderMinted = `
		UPDATE mint_orders
		SET state = ?, mint_tx_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?`

	queryMarkOrderRefundPending = `
		UPDATE mint_orders
		SET state = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state IN (?, ?)`

	queryMarkOrderRefunded = `
		UPDATE mint_orders
		SET state = ?, refund_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?`

	queryMarkOrderFailed = `
		UPDATE mint_orders
		SET state = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state NOT IN (?, ?)`

	// Settlement failure queries
	queryInsertFailure = `
		INSERT INTO settlement_failures (id, saga, entity_id, last_step, reason)
		VALUES (?, ?, ?, ?, ?)`

	queryListFailures = `
		SELECT id, saga, entity_id, last_step, reason, detected_at
		FROM settlement_failures
		ORDER BY detected_at DESC
		LIMIT ? OFFSET ?`
)
