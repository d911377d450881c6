package db

import "database/sql"

const (
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors(
		id uuid NOT NULL PRIMARY KEY,
		username varchar(100) NOT NULL,
		kind varchar(20) NOT NULL DEFAULT 'Person',
		hostname varchar(255),
		actor_uri varchar(1000) UNIQUE NOT NULL,
		inbox_uri varchar(1000),
		shared_inbox_uri varchar(1000),
		outbox_uri varchar(1000),
		followers_uri varchar(1000),
		following_uri varchar(1000),
		subscribers_uri varchar(1000),
		featured_uri varchar(1000),
		display_name varchar(500),
		summary text,
		avatar_url varchar(1000),
		banner_url varchar(1000),
		manually_approves_followers int DEFAULT 0,
		public_key_pem text,
		private_key_pem text,
		ed25519_public text,
		ed25519_private text,
		remote_json text,
		alias_uris text,
		is_admin int DEFAULT 0,
		muted int DEFAULT 0,
		post_count int DEFAULT 0,
		follower_count int DEFAULT 0,
		following_count int DEFAULT 0,
		unreachable_since timestamp,
		created_at timestamp DEFAULT current_timestamp,
		last_fetched_at timestamp,
		UNIQUE(username, hostname)
	)`

	sqlCreateConversationsTable = `CREATE TABLE IF NOT EXISTS conversations(
		id uuid NOT NULL PRIMARY KEY,
		root_post_id uuid NOT NULL,
		audience varchar(1000)
	)`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
		id uuid NOT NULL PRIMARY KEY,
		author_id uuid NOT NULL,
		object_uri varchar(1000) UNIQUE,
		content text,
		content_source text,
		language varchar(20),
		visibility varchar(20) NOT NULL DEFAULT 'public',
		is_sensitive int DEFAULT 0,
		in_reply_to uuid,
		repost_of uuid,
		conversation_id uuid NOT NULL,
		is_poll int DEFAULT 0,
		poll_end_time timestamp,
		reply_count int DEFAULT 0,
		repost_count int DEFAULT 0,
		reaction_count int DEFAULT 0,
		like_count int DEFAULT 0,
		ipfs_cid varchar(255),
		created_at timestamp DEFAULT current_timestamp,
		updated_at timestamp
	)`

	sqlCreateRelationshipsTable = `CREATE TABLE IF NOT EXISTS relationships(
		id uuid NOT NULL PRIMARY KEY,
		source_id uuid NOT NULL,
		target_id uuid NOT NULL,
		kind varchar(30) NOT NULL,
		uri varchar(1000),
		created_at timestamp DEFAULT current_timestamp,
		UNIQUE(source_id, target_id, kind)
	)`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities(
		id uuid NOT NULL PRIMARY KEY,
		activity_uri varchar(1000) UNIQUE NOT NULL,
		canonical_id varchar(1000) NOT NULL,
		activity_type varchar(50) NOT NULL,
		actor_uri varchar(1000) NOT NULL,
		object_uri varchar(1000),
		raw_json text NOT NULL,
		local int DEFAULT 0,
		from_relay int DEFAULT 0,
		created_at timestamp DEFAULT current_timestamp
	)`

	sqlCreateDeliveryJobsTable = `CREATE TABLE IF NOT EXISTS delivery_jobs(
		id uuid NOT NULL PRIMARY KEY,
		actor_id uuid NOT NULL,
		inbox_uri varchar(1000) NOT NULL,
		activity_json text NOT NULL,
		state varchar(20) NOT NULL DEFAULT 'pending',
		attempts int DEFAULT 0,
		failure_reason varchar(500),
		next_attempt_at timestamp NOT NULL DEFAULT current_timestamp,
		created_at timestamp DEFAULT current_timestamp
	)`

	sqlCreateAttachmentsTable = `CREATE TABLE IF NOT EXISTS attachments(
		id uuid NOT NULL PRIMARY KEY,
		post_id uuid NOT NULL,
		media_type varchar(100),
		url varchar(1000),
		name varchar(500),
		digest_multibase varchar(200)
	)`

	sqlCreateMentionsTable = `CREATE TABLE IF NOT EXISTS mentions(
		post_id uuid NOT NULL,
		actor_id uuid NOT NULL,
		PRIMARY KEY(post_id, actor_id)
	)`

	sqlCreateHashtagsTable = `CREATE TABLE IF NOT EXISTS hashtags(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name varchar(200) UNIQUE NOT NULL
	)`

	sqlCreatePostHashtagsTable = `CREATE TABLE IF NOT EXISTS post_hashtags(
		post_id uuid NOT NULL,
		hashtag_id int NOT NULL,
		PRIMARY KEY(post_id, hashtag_id)
	)`

	sqlCreateLinksTable = `CREATE TABLE IF NOT EXISTS post_links(
		post_id uuid NOT NULL,
		linked_post_id uuid NOT NULL,
		position int DEFAULT 0,
		PRIMARY KEY(post_id, linked_post_id)
	)`

	sqlCreateEmojisTable = `CREATE TABLE IF NOT EXISTS post_emojis(
		post_id uuid NOT NULL,
		shortcode varchar(100) NOT NULL,
		icon_url varchar(1000),
		updated_at timestamp,
		PRIMARY KEY(post_id, shortcode)
	)`

	sqlCreatePollOptionsTable = `CREATE TABLE IF NOT EXISTS poll_options(
		post_id uuid NOT NULL,
		name varchar(200) NOT NULL,
		votes int DEFAULT 0,
		PRIMARY KEY(post_id, name)
	)`

	sqlCreateVotesTable = `CREATE TABLE IF NOT EXISTS poll_votes(
		post_id uuid NOT NULL,
		option_name varchar(200) NOT NULL,
		voter_id uuid NOT NULL,
		created_at timestamp DEFAULT current_timestamp,
		PRIMARY KEY(post_id, voter_id)
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications(
		id uuid NOT NULL PRIMARY KEY,
		actor_id uuid NOT NULL,
		notification_type varchar(20) NOT NULL,
		source_actor_id uuid NOT NULL,
		source_handle varchar(400),
		post_id uuid,
		post_uri varchar(1000),
		post_preview varchar(200),
		read int DEFAULT 0,
		created_at timestamp DEFAULT current_timestamp
	)`

	sqlCreateIdempotencyTable = `CREATE TABLE IF NOT EXISTS idempotency_keys(
		key varchar(200) NOT NULL PRIMARY KEY,
		post_id uuid NOT NULL,
		created_at timestamp DEFAULT current_timestamp
	)`

	sqlCreateIndices = []string{
		`CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_conversation ON posts(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_in_reply_to ON posts(in_reply_to)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_repost_of ON posts(repost_of)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_canonical ON activities(canonical_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_object ON activities(object_uri)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_jobs_state ON delivery_jobs(state, next_attempt_at)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_actor ON mentions(actor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_actor ON notifications(actor_id, read)`,
	}
)

// Migrate creates every table and index the engine needs. It is
// idempotent — every statement is IF NOT EXISTS.
func (d *DB) Migrate() error {
	return d.wrapTransaction(func(tx *sql.Tx) error {
		statements := []string{
			sqlCreateActorsTable,
			sqlCreateConversationsTable,
			sqlCreatePostsTable,
			sqlCreateRelationshipsTable,
			sqlCreateActivitiesTable,
			sqlCreateDeliveryJobsTable,
			sqlCreateAttachmentsTable,
			sqlCreateMentionsTable,
			sqlCreateHashtagsTable,
			sqlCreatePostHashtagsTable,
			sqlCreateLinksTable,
			sqlCreateEmojisTable,
			sqlCreatePollOptionsTable,
			sqlCreateVotesTable,
			sqlCreateNotificationsTable,
			sqlCreateIdempotencyTable,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		for _, stmt := range sqlCreateIndices {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
