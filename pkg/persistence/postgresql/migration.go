package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create collaboration_requests table
			CREATE TABLE collaboration_requests (
				id VARCHAR(255) PRIMARY KEY,
				item_id VARCHAR(255) NOT NULL,
				requester_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL,
				message TEXT NOT NULL,
				requested_parts TEXT[] NOT NULL DEFAULT '{}',
				assigned_parts TEXT[] NOT NULL DEFAULT '{}',
				grant_full_pack_permissions BOOLEAN NOT NULL DEFAULT false,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
				batch_id VARCHAR(255),
				response_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				responded_at TIMESTAMP WITH TIME ZONE
			);

			-- At most one pending request per (requester, item)
			CREATE UNIQUE INDEX idx_collaboration_requests_pending
				ON collaboration_requests(requester_id, item_id)
				WHERE status = 'pending';

			CREATE INDEX idx_collaboration_requests_owner ON collaboration_requests(owner_id, status);
			CREATE INDEX idx_collaboration_requests_requester ON collaboration_requests(requester_id, status);
			CREATE INDEX idx_collaboration_requests_item ON collaboration_requests(item_id, status);
			CREATE INDEX idx_collaboration_requests_batch ON collaboration_requests(batch_id);
		`,
		2: `
			-- Create collaboration_batches table
			CREATE TABLE collaboration_batches (
				id VARCHAR(255) PRIMARY KEY,
				requester_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL,
				message TEXT NOT NULL,
				request_ids TEXT[] NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_collaboration_batches_owner ON collaboration_batches(owner_id);
			CREATE INDEX idx_collaboration_batches_requester ON collaboration_batches(requester_id);
		`,
	}
}
