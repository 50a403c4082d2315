package store

import (
	"context"
	"encoding/json"
	"fmt"

	"clientflow/api/internal/clients"
)

// ListClients implements clients.Directory. Order is the stored position,
// which is the precedence order for matching.
func (s *PostgresStore) ListClients(ctx context.Context) ([]clients.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contacts, domains, notes_doc_id, task_project_id,
			label_base, label_summaries, label_agendas, setup_complete
		FROM clients
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]clients.Client, 0)
	for rows.Next() {
		var item clients.Client
		var contactsRaw, domainsRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&contactsRaw,
			&domainsRaw,
			&item.NotesDocID,
			&item.TaskProjectID,
			&item.Labels.Base,
			&item.Labels.Summaries,
			&item.Labels.Agendas,
			&item.SetupComplete,
		); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		_ = json.Unmarshal(contactsRaw, &item.Contacts)
		_ = json.Unmarshal(domainsRaw, &item.Domains)
		items = append(items, item.WithDefaults())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

// UpsertClients writes the directory in one transaction, assigning positions
// from slice order. Clients absent from the list are left in place.
func (s *PostgresStore) UpsertClients(ctx context.Context, list []clients.Client) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert clients: %w", err)
	}
	defer tx.Rollback()

	for position, raw := range list {
		client := raw.WithDefaults()
		contacts, err := encodeJSON(nonNilStrings(client.Contacts), "[]")
		if err != nil {
			return err
		}
		domains, err := encodeJSON(nonNilStrings(client.Domains), "[]")
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clients (id, position, name, contacts, domains, notes_doc_id, task_project_id,
				label_base, label_summaries, label_agendas, setup_complete)
			VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				position=EXCLUDED.position,
				name=EXCLUDED.name,
				contacts=EXCLUDED.contacts,
				domains=EXCLUDED.domains,
				notes_doc_id=EXCLUDED.notes_doc_id,
				task_project_id=EXCLUDED.task_project_id,
				label_base=EXCLUDED.label_base,
				label_summaries=EXCLUDED.label_summaries,
				label_agendas=EXCLUDED.label_agendas,
				setup_complete=EXCLUDED.setup_complete,
				updated_at=NOW()
		`, client.ID, position, client.Name, contacts, domains, client.NotesDocID, client.TaskProjectID,
			client.Labels.Base, client.Labels.Summaries, client.Labels.Agendas, client.SetupComplete); err != nil {
			return fmt.Errorf("upsert client %s: %w", client.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert clients: %w", err)
	}
	return nil
}
