package mysql

const reviewColumns = "app_id, review_id, author_name, author_uri, rating, title, `content`, updated_at, version"

// Note: `content` is quoted everywhere to stay clear of reserved words.
const insertReviewsPrefix = "INSERT INTO reviews\n  (" + reviewColumns + ")\nVALUES "

// one placeholder group per row, matching reviewColumns
const insertReviewsRow = "(?,?,?,?,?,?,?,?,?)"

// rows per INSERT statement; keeps well under max_allowed_packet and the 65535 placeholder cap
const insertChunk = 500

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const existsSQL = `SELECT EXISTS(SELECT 1 FROM reviews WHERE app_id = ?)`

// id breaks updated_at ties so output is stable between calls
const latestSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE app_id = ?
ORDER BY updated_at DESC, id DESC
LIMIT 1`

const sinceSQL = "SELECT " + reviewColumns + `
FROM reviews
WHERE app_id = ? AND updated_at > ?
ORDER BY updated_at DESC, id DESC`
