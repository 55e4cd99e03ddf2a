package migrations

import "embed"

// PostgresFS embeds the journal and purchase log schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the sale timeseries schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
