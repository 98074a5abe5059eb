package sqlite

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE collaboration_requests (
				id TEXT PRIMARY KEY,
				item_id TEXT NOT NULL,
				requester_id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				message TEXT NOT NULL,
				requested_parts TEXT NOT NULL DEFAULT '',
				assigned_parts TEXT NOT NULL DEFAULT '',
				grant_full_pack_permissions INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
				batch_id TEXT,
				response_message TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				responded_at INTEGER
			);

			CREATE UNIQUE INDEX idx_collaboration_requests_pending
				ON collaboration_requests(requester_id, item_id)
				WHERE status = 'pending';

			CREATE INDEX idx_collaboration_requests_owner ON collaboration_requests(owner_id, status);
			CREATE INDEX idx_collaboration_requests_requester ON collaboration_requests(requester_id, status);
			CREATE INDEX idx_collaboration_requests_item ON collaboration_requests(item_id, status);
			CREATE INDEX idx_collaboration_requests_batch ON collaboration_requests(batch_id);
		`,
		2: `
			CREATE TABLE collaboration_batches (
				id TEXT PRIMARY KEY,
				requester_id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				message TEXT NOT NULL,
				request_ids TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
		`,
	}
}
