package migrations

// InitialSchema creates the profiles and messages tables
var InitialSchema = &Migration{
	Name: "001_initial_schema",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			home_location_id TEXT NOT NULL,
			home_location_label TEXT,
			home_location_latitude DOUBLE PRECISION,
			home_location_longitude DOUBLE PRECISION,
			home_location_country_code TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL REFERENCES profiles (id),
			recipient_id TEXT NOT NULL REFERENCES profiles (id),
			body TEXT NOT NULL,
			title TEXT,
			pigeon_name TEXT,
			status TEXT NOT NULL DEFAULT 'in_flight'
				CHECK (status IN ('preparing', 'in_flight', 'delivered')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			departure_time TIMESTAMPTZ NOT NULL,
			arrival_time TIMESTAMPTZ NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL CHECK (distance_km >= 0),
			pigeon_speed_kmh DOUBLE PRECISION NOT NULL CHECK (pigeon_speed_kmh > 0),
			CHECK (arrival_time > departure_time)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages (recipient_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages (arrival_time)
			WHERE status <> 'delivered';
	`,
	DownSQL: `
		DROP TABLE IF EXISTS messages;
		DROP TABLE IF EXISTS profiles;
	`,
}
