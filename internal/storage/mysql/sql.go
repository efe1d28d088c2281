package mysql

// -----------------------------------------------------------------------------
// LEDGER WRITES
// -----------------------------------------------------------------------------

// Moves the counter only from the value the ledger planned against.
const bumpCounterSQL = `
UPDATE ledger_config
SET review_counter = ?
WHERE id = 1 AND review_counter = ?
`

// Note: `text` is reserved; keep it quoted everywhere.
const insertReviewSQL = "INSERT INTO reviews\n" +
	"  (id, author, location_id, `text`, rating, logical_ts, fingerprint, is_active)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

const insertUserReviewSQL = `
INSERT INTO user_reviews (author, location_id, review_id, last_submitted)
VALUES (?, ?, ?, ?)
`

// Locks the review and its index row; both must exist and agree before an update.
const lockReviewForUpdateSQL = `
SELECT COUNT(*)
FROM reviews r
JOIN user_reviews ur ON ur.review_id = r.id
WHERE r.id = ? AND r.author = ? AND r.location_id = ?
  AND ur.author = r.author AND ur.location_id = r.location_id
FOR UPDATE
`

// author/location are never rewritten; the WHERE pins ownership.
const updateReviewSQL = "UPDATE reviews\n" +
	"SET `text` = ?, rating = ?, logical_ts = ?, fingerprint = ?, is_active = ?\n" +
	"WHERE id = ? AND author = ? AND location_id = ?"

const touchUserReviewSQL = `
UPDATE user_reviews
SET last_submitted = ?
WHERE author = ? AND location_id = ? AND review_id = ?
`

// The authority column is write-once: it may only go from NULL to a value.
const saveConfigSQL = `
UPDATE ledger_config
SET cooldown_period = ?, authority = ?
WHERE id = 1 AND (authority IS NULL OR authority = ?)
`

const insertEventSQL = `
INSERT INTO ledger_events
  (id, kind, actor, review_id, location_id, fingerprint, value, height, recorded_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// LEDGER READS
// -----------------------------------------------------------------------------

const getConfigSQL = `SELECT review_counter, cooldown_period, authority FROM ledger_config WHERE id = 1`

const selectReviewCols = "SELECT id, author, location_id, `text`, rating, logical_ts, fingerprint, is_active FROM reviews"

const getReviewSQL = selectReviewCols + " WHERE id = ?"

const listReviewsSQL = selectReviewCols + " ORDER BY id"

const getUserReviewSQL = `
SELECT review_id, last_submitted
FROM user_reviews
WHERE author = ? AND location_id = ?
`

const listUserReviewsSQL = `SELECT author, location_id, review_id, last_submitted FROM user_reviews`

// -----------------------------------------------------------------------------
// REGISTRIES
// -----------------------------------------------------------------------------

const hasUserSQL = `SELECT EXISTS(SELECT 1 FROM registered_users WHERE identity = ?)`

const hasLocationSQL = `SELECT EXISTS(SELECT 1 FROM registered_locations WHERE id = ?)`

const upsertUsersPrefix = "INSERT INTO registered_users (identity, name, raw)\nVALUES "

const upsertUsersOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  name = COALESCE(VALUES(name), registered_users.name),\n" +
	"  raw  = COALESCE(VALUES(raw), registered_users.raw)\n"

const upsertLocationSQL = `
INSERT INTO registered_locations
  (id, name, city, country, lat, lon, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  name    = VALUES(name),
  city    = VALUES(city),
  country = VALUES(country),
  lat     = VALUES(lat),
  lon     = VALUES(lon),
  raw     = VALUES(raw)
`

const removeLocationSQL = `DELETE FROM registered_locations WHERE id = ?`

const removeUsersPrefix = "DELETE FROM registered_users WHERE identity IN "

const insertMissSQL = `
INSERT INTO registry_misses (kind, ref, http_status, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE http_status = VALUES(http_status), reason = VALUES(reason), seen_at = CURRENT_TIMESTAMP
`
