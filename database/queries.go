package database

const (
	SelectDistributionListsForUpdate = `
		SELECT account_name, email_distros
		FROM distribution_lists
		ORDER BY account_name
		FOR UPDATE`

	UpdateDistributionList = `
		UPDATE distribution_lists
		SET email_distros = $2, updated_at = NOW()
		WHERE account_name = $1`

	UpsertDistributionList = `
		INSERT INTO distribution_lists (account_name, email_distros)
		VALUES ($1, $2)
		ON CONFLICT (account_name)
		DO UPDATE SET email_distros = EXCLUDED.email_distros, updated_at = NOW()`

	InsertDisableAudit = `
		INSERT INTO disable_audit (audit_id, distinguishedName, actor, marker, disabled, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)
