package migrations

import (
	_ "embed"
)

//go:embed 2025090601_create_certificates.up.sql
var createCertificatesSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createCertificatesSQL),
		execSQL(`DROP TABLE IF EXISTS quiz_attempts; DROP TABLE IF EXISTS certificate_serials; DROP TABLE IF EXISTS certificates`),
	)
}
