package storage

// Schema statements per driver, applied in order on OpenRemote. Ids are
// assigned by the database and never reused: sqlite AUTOINCREMENT and
// postgres sequences both skip deleted values.
var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			author TEXT NOT NULL,
			date TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			author TEXT NOT NULL,
			date TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);`,
	},
	DriverPgx: {
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			author TEXT NOT NULL,
			date TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS answers (
			id BIGSERIAL PRIMARY KEY,
			question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			author TEXT NOT NULL,
			date TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);`,
	},
}
