package db

// Times are unix milliseconds. Nullable dates use NULL for "not set".

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'STUDENT',
  given_name TEXT NOT NULL DEFAULT '',
  family_name TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_groups (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  owner_id TEXT NOT NULL,
  additional_manager_privileges INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_memberships (
  group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS group_additional_managers (
  group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (group_id, user_id)
);

-- a student (owner) lets a teacher see their data
CREATE TABLE IF NOT EXISTS user_associations (
  owner_user_id TEXT NOT NULL,
  user_id_receiving_permission TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (owner_user_id, user_id_receiving_permission)
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  visible_to_students INTEGER NOT NULL DEFAULT 0,
  hidden_from_roles TEXT NOT NULL DEFAULT '[]',
  default_feedback_mode TEXT NOT NULL DEFAULT '',
  sections_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_questions (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL DEFAULT '',
  section_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  typ TEXT NOT NULL,
  answer_key_json TEXT NOT NULL DEFAULT '[]',
  points REAL NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS quiz_assignments (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  owner_user_id TEXT NOT NULL,
  creation_date INTEGER NOT NULL,
  due_date INTEGER,
  feedback_mode TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE'
);

CREATE INDEX IF NOT EXISTS quiz_assignments_group ON quiz_assignments(group_id);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_assignments_open_ended
  ON quiz_assignments(quiz_id, group_id) WHERE status = 'ACTIVE' AND due_date IS NULL;

-- one row per (quiz, group); creators lock it before checking for live assignments
CREATE TABLE IF NOT EXISTS quiz_assignment_slots (
  quiz_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  touched_at INTEGER NOT NULL,
  PRIMARY KEY (quiz_id, group_id)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  quiz_id TEXT NOT NULL,
  quiz_assignment_id TEXT REFERENCES quiz_assignments(id),
  start_date INTEGER NOT NULL,
  completed_date INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_attempts_user_assignment
  ON quiz_attempts(user_id, quiz_assignment_id);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_attempts_open_free
  ON quiz_attempts(user_id, quiz_id) WHERE quiz_assignment_id IS NULL AND completed_date IS NULL;

CREATE TABLE IF NOT EXISTS quiz_question_attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  quiz_attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  answer TEXT NOT NULL,
  correct INTEGER NOT NULL,
  marks REAL NOT NULL DEFAULT 0,
  max_marks REAL NOT NULL DEFAULT 0,
  explanation TEXT NOT NULL DEFAULT '',
  date_attempted INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_question_attempts_attempt ON quiz_question_attempts(quiz_attempt_id);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  event_key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'STUDENT',
  given_name TEXT NOT NULL DEFAULT '',
  family_name TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_groups (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  owner_id TEXT NOT NULL,
  additional_manager_privileges INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_memberships (
  group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS group_additional_managers (
  group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL,
  PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS user_associations (
  owner_user_id TEXT NOT NULL,
  user_id_receiving_permission TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (owner_user_id, user_id_receiving_permission)
);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  visible_to_students INTEGER NOT NULL DEFAULT 0,
  hidden_from_roles TEXT NOT NULL DEFAULT '[]',
  default_feedback_mode TEXT NOT NULL DEFAULT '',
  sections_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_questions (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL DEFAULT '',
  section_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  typ TEXT NOT NULL,
  answer_key_json TEXT NOT NULL DEFAULT '[]',
  points DOUBLE PRECISION NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS quiz_assignments (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  owner_user_id TEXT NOT NULL,
  creation_date BIGINT NOT NULL,
  due_date BIGINT,
  feedback_mode TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE'
);

CREATE INDEX IF NOT EXISTS quiz_assignments_group ON quiz_assignments(group_id);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_assignments_open_ended
  ON quiz_assignments(quiz_id, group_id) WHERE status = 'ACTIVE' AND due_date IS NULL;

CREATE TABLE IF NOT EXISTS quiz_assignment_slots (
  quiz_id TEXT NOT NULL,
  group_id TEXT NOT NULL,
  touched_at BIGINT NOT NULL,
  PRIMARY KEY (quiz_id, group_id)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  quiz_id TEXT NOT NULL,
  quiz_assignment_id TEXT REFERENCES quiz_assignments(id),
  start_date BIGINT NOT NULL,
  completed_date BIGINT
);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_attempts_user_assignment
  ON quiz_attempts(user_id, quiz_assignment_id);

CREATE UNIQUE INDEX IF NOT EXISTS quiz_attempts_open_free
  ON quiz_attempts(user_id, quiz_id) WHERE quiz_assignment_id IS NULL AND completed_date IS NULL;

CREATE TABLE IF NOT EXISTS quiz_question_attempts (
  id BIGSERIAL PRIMARY KEY,
  quiz_attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  answer TEXT NOT NULL,
  correct INTEGER NOT NULL,
  marks DOUBLE PRECISION NOT NULL DEFAULT 0,
  max_marks DOUBLE PRECISION NOT NULL DEFAULT 0,
  explanation TEXT NOT NULL DEFAULT '',
  date_attempted BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS quiz_question_attempts_attempt ON quiz_question_attempts(quiz_attempt_id);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  event_key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
