package models

// All lists every persisted model. Used by AutoMigrate for sqlite databases,
// where the goose SQL migrations do not apply.
func All() []any {
	return []any{
		&Product{},
		&SupplyEvent{},
		&VerificationResult{},
		&VerificationJob{},
		&LedgerEntry{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
