package migrations

// PostStats creates the table the reconciler persists its counters to
var PostStats = &Migration{
	Name: "002_post_stats",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS post_stats (
			time TIMESTAMPTZ NOT NULL,
			reconcile_ticks BIGINT NOT NULL,
			due_messages BIGINT NOT NULL,
			delivered_messages BIGINT NOT NULL,
			failed_deliveries BIGINT NOT NULL,
			sent_messages BIGINT NOT NULL,
			published_events BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_post_stats_time ON post_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS post_stats;
	`,
}
