package services

import (
	"errors"
	"testing"

	"github.com/dukex/trackcollab/pkg/events"
	"github.com/dukex/trackcollab/pkg/mocks"
	"github.com/dukex/trackcollab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (h *harness) createBatch(t *testing.T, itemIDs ...string) *BatchResult {
	t.Helper()

	result, err := h.svc.CreateBatch(t.Context(), CreateBatchInput{
		RequesterID: requester,
		OwnerID:     owner,
		ItemIDs:     itemIDs,
		Message:     "I'd like to help on any of these",
	})
	require.NoError(t, err)

	return result
}

func memberIDs(members []*models.CollaborationRequest) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	return ids
}

func TestCollaboration_CreateBatch(t *testing.T) {
	h := newHarness(t)

	result := h.createBatch(t, "song-1", "song-2", "song-3")

	batch := result.Batch
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, models.BatchStatusPending, batch.Status)
	assert.Equal(t, owner, batch.OwnerID)
	require.Len(t, result.Members, 3)
	assert.Equal(t, batch.RequestIDs, memberIDs(result.Members))

	for i, m := range result.Members {
		assert.Equal(t, []string{"song-1", "song-2", "song-3"}[i], m.ItemID)
		assert.Equal(t, models.RequestStatusPending, m.Status)
		assert.True(t, m.RequestedParts.Empty())
		require.True(t, m.InBatch())
		assert.Equal(t, batch.ID, *m.BatchID)
	}

	assert.Equal(t, []events.EventType{events.BatchCreatedEvent}, h.bus.PublishedTypes())

	fetched, err := h.svc.GetBatch(t.Context(), batch.ID, requester)
	require.NoError(t, err)
	assert.Equal(t, batch.RequestIDs, memberIDs(fetched.Members))
	assert.Equal(t, models.BatchStatusPending, fetched.Batch.Status)

	_, err = h.svc.GetBatch(t.Context(), batch.ID, "mallory")
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestCollaboration_CreateBatch_InferOwner(t *testing.T) {
	h := newHarness(t)

	result, err := h.svc.CreateBatch(t.Context(), CreateBatchInput{
		RequesterID: requester,
		ItemIDs:     []string{"song-2", "song-3"},
		Message:     "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, owner, result.Batch.OwnerID)
}

func TestCollaboration_CreateBatch_Validation(t *testing.T) {
	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "song-1"
	}

	tests := []struct {
		name  string
		input CreateBatchInput
		want  error
	}{
		{"no items", CreateBatchInput{RequesterID: requester, Message: "hi"}, ErrBatchSize},
		{"too many items", CreateBatchInput{RequesterID: requester, Message: "hi", ItemIDs: tooMany}, ErrBatchSize},
		{"duplicate items", CreateBatchInput{RequesterID: requester, Message: "hi", ItemIDs: []string{"song-1", "song-1"}}, ErrDuplicateItems},
		{"mixed owners", CreateBatchInput{RequesterID: requester, Message: "hi", ItemIDs: []string{"song-1", "song-4"}}, ErrMixedOwnership},
		{"wrong owner", CreateBatchInput{RequesterID: requester, OwnerID: "oscar", Message: "hi", ItemIDs: []string{"song-1"}}, ErrMixedOwnership},
		{"own items", CreateBatchInput{RequesterID: owner, Message: "hi", ItemIDs: []string{"song-1", "song-2"}}, ErrSelfRequest},
		{"empty message", CreateBatchInput{RequesterID: requester, ItemIDs: []string{"song-1"}}, ErrMessageRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.svc.CreateBatch(t.Context(), tt.input)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))

			sent, err := h.svc.ListSent(t.Context(), tt.input.RequesterID, nil)
			if tt.input.RequesterID != "" {
				require.NoError(t, err)
				assert.Empty(t, sent)
			}
		})
	}
}

func TestCollaboration_CreateBatch_ConflictLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)

	existing := h.create(t, requester, "song-2")

	_, err := h.svc.CreateBatch(t.Context(), CreateBatchInput{
		RequesterID: requester,
		ItemIDs:     []string{"song-1", "song-2", "song-3"},
		Message:     "hi",
	})
	require.ErrorIs(t, err, ErrDuplicatePending)
	assert.True(t, IsConflictError(err))

	sent, err := h.svc.ListSent(t.Context(), requester, nil)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, existing.ID, sent[0].ID)
}

func TestCollaboration_ScenarioC(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1", "song-2", "song-3")
	ids := created.Batch.RequestIDs

	_, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID: created.Batch.ID,
		ActorID: owner,
		Action:  models.BatchActionSelective,
		Decisions: map[string]string{
			ids[0]: "accepted",
			ids[1]: "rejected",
		},
	})
	require.ErrorIs(t, err, ErrIncompleteDecisions)
	assert.True(t, IsValidationError(err))

	fetched, err := h.svc.GetBatch(t.Context(), created.Batch.ID, owner)
	require.NoError(t, err)

	for _, m := range fetched.Members {
		assert.Equal(t, models.RequestStatusPending, m.Status)
	}

	assert.Empty(t, h.sink.PartGrants())
}

func TestCollaboration_RespondBatch_Derivation(t *testing.T) {
	tests := []struct {
		name      string
		action    models.BatchAction
		decisions []string
		want      models.BatchStatus
		accepted  int
	}{
		{name: "approve all", action: models.BatchActionApproveAll, want: models.BatchStatusApproved, accepted: 3},
		{name: "reject all", action: models.BatchActionRejectAll, want: models.BatchStatusRejected},
		{name: "selective k of n", action: models.BatchActionSelective, decisions: []string{"accept", "reject", "reject"}, want: models.BatchStatusPartial, accepted: 1},
		{name: "selective all", action: models.BatchActionSelective, decisions: []string{"accept", "accept", "accept"}, want: models.BatchStatusApproved, accepted: 3},
		{name: "selective none", action: models.BatchActionSelective, decisions: []string{"reject", "reject", "reject"}, want: models.BatchStatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			created := h.createBatch(t, "song-1", "song-2", "song-3")

			decisions := make(map[string]string, len(tt.decisions))
			for i, d := range tt.decisions {
				decisions[created.Batch.RequestIDs[i]] = d
			}

			result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
				BatchID:         created.Batch.ID,
				ActorID:         owner,
				Action:          tt.action,
				Decisions:       decisions,
				ResponseMessage: "thanks",
			})
			require.NoError(t, err)
			assert.Empty(t, result.Failures)
			assert.Equal(t, tt.want, result.Batch.Status)

			var accepted int

			for _, m := range result.Members {
				assert.NotEqual(t, models.RequestStatusPending, m.Status)
				assert.Equal(t, "thanks", m.ResponseMessage)

				if m.Status == models.RequestStatusAccepted {
					accepted++
				}
			}

			assert.Equal(t, tt.accepted, accepted)
			assert.Len(t, h.sink.PartGrants(), tt.accepted)

			published := h.bus.Published()
			resolved, ok := published[len(published)-1].(events.BatchResolved)
			require.True(t, ok)
			assert.Equal(t, tt.accepted, resolved.Accepted)
			assert.Equal(t, 3-tt.accepted, resolved.Rejected)
			assert.Equal(t, tt.want, resolved.Status)
			assert.Equal(t, requester, resolved.Recipient)
		})
	}
}

func TestCollaboration_RespondBatch_MembersAreWholeItem(t *testing.T) {
	h := newHarness(t)

	// every open step of song-1 is already taken
	taken := h.create(t, "gary", "song-1", "bass", "guitar", "vocals")
	h.respond(t, taken.ID, models.DecisionAccept)

	created := h.createBatch(t, "song-1", "song-2")

	result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID: created.Batch.ID,
		ActorID: owner,
		Action:  models.BatchActionApproveAll,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Equal(t, models.BatchStatusApproved, result.Batch.Status)

	require.Len(t, result.Members, 2)

	for _, m := range result.Members {
		assert.Equal(t, models.RequestStatusAccepted, m.Status)
		assert.True(t, m.AssignedParts.Empty())
	}

	grants := h.sink.PartGrants()
	require.Len(t, grants, 3)
	assert.True(t, grants[1].AllowedSteps.Empty())
	assert.True(t, grants[2].AllowedSteps.Empty())
}

func TestCollaboration_RespondBatch_MembersLeaveStepsAvailable(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1")

	_, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID: created.Batch.ID,
		ActorID: owner,
		Action:  models.BatchActionApproveAll,
	})
	require.NoError(t, err)

	available, err := h.svc.AvailableParts(t.Context(), "song-1")
	require.NoError(t, err)
	assert.Equal(t, models.PartSet{models.PartBass, models.PartGuitar, models.PartVocals}, available)

	vocals := h.create(t, "victor", "song-1", "vocals")
	assert.Equal(t, models.PartSet{models.PartVocals}, vocals.RequestedParts)
}

func TestCollaboration_RespondBatch_FullPackCollision(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1", "song-2", "song-3")

	result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID:                  created.Batch.ID,
		ActorID:                  owner,
		Action:                   models.BatchActionApproveAll,
		ResponseMessage:          "welcome",
		GrantFullPackPermissions: true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusPartial, result.Batch.Status)
	require.Len(t, result.Failures, 1)

	failure := result.Failures[0]
	assert.Equal(t, "song-3", failure.ItemID)
	assert.Equal(t, "no_pack", failure.Code)
	require.ErrorIs(t, failure.Err, ErrNoPack)

	noPack := result.Members[2]
	assert.Equal(t, models.RequestStatusRejected, noPack.Status)
	assert.Contains(t, noPack.ResponseMessage, "welcome")
	assert.Contains(t, noPack.ResponseMessage, systemNotePrefix)

	for _, m := range result.Members[:2] {
		assert.Equal(t, models.RequestStatusAccepted, m.Status)
		assert.True(t, m.GrantFullPackPermissions)
		assert.True(t, m.AssignedParts.Empty())
	}

	assert.Len(t, h.sink.PackGrants(), 2)
}

func TestCollaboration_RespondBatch_GrantFailureRejectsMember(t *testing.T) {
	sink := &mocks.MockSink{}
	sink.On("GrantParts", mock.Anything, mock.MatchedBy(func(g models.PartGrant) bool {
		return g.ItemID == "song-2"
	})).Return(errors.New("authz unavailable"))
	sink.On("GrantParts", mock.Anything, mock.Anything).Return(nil)

	h := newHarnessWithSink(t, sink, nil)

	created := h.createBatch(t, "song-1", "song-2")

	result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID: created.Batch.ID,
		ActorID: owner,
		Action:  models.BatchActionApproveAll,
	})
	require.NoError(t, err)

	assert.Equal(t, models.BatchStatusPartial, result.Batch.Status)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "grant_failed", result.Failures[0].Code)
	require.ErrorIs(t, result.Failures[0].Err, ErrGrantFailed)

	assert.Equal(t, models.RequestStatusAccepted, result.Members[0].Status)
	assert.Equal(t, models.RequestStatusRejected, result.Members[1].Status)
	assert.Equal(t, systemNotePrefix+"authz unavailable", result.Members[1].ResponseMessage)
}

func TestCollaboration_RespondBatch_ResolvedMembersAreReported(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1", "song-2")
	h.respond(t, created.Batch.RequestIDs[0], models.DecisionReject)

	result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID: created.Batch.ID,
		ActorID: owner,
		Action:  models.BatchActionApproveAll,
	})
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, created.Batch.RequestIDs[0], result.Failures[0].RequestID)
	assert.Equal(t, "already_resolved", result.Failures[0].Code)
	assert.Equal(t, models.BatchStatusPartial, result.Batch.Status)
}

func TestCollaboration_RespondBatch_CancelledMembers(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1", "song-2", "song-3")
	ids := created.Batch.RequestIDs

	require.NoError(t, h.svc.Cancel(t.Context(), ids[1], requester))

	// the cancelled member needs no decision
	result, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID:   created.Batch.ID,
		ActorID:   owner,
		Action:    models.BatchActionSelective,
		Decisions: map[string]string{ids[0]: "accept", ids[2]: "accept"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2]}, memberIDs(result.Members))
	assert.Equal(t, models.BatchStatusApproved, result.Batch.Status)

	other := h.createBatch(t, "song-2")
	require.NoError(t, h.svc.Cancel(t.Context(), other.Batch.RequestIDs[0], requester))

	fetched, err := h.svc.GetBatch(t.Context(), other.Batch.ID, owner)
	require.NoError(t, err)
	assert.Empty(t, fetched.Members)
	assert.Equal(t, models.BatchStatusRejected, fetched.Batch.Status)
}

func TestCollaboration_RespondBatch_Errors(t *testing.T) {
	h := newHarness(t)

	created := h.createBatch(t, "song-1", "song-2")
	ids := created.Batch.RequestIDs

	_, err := h.svc.RespondBatch(t.Context(), BatchRespondInput{BatchID: created.Batch.ID, ActorID: requester, Action: models.BatchActionApproveAll})
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = h.svc.RespondBatch(t.Context(), BatchRespondInput{BatchID: "missing", ActorID: owner, Action: models.BatchActionApproveAll})
	require.ErrorIs(t, err, ErrBatchNotFound)
	assert.True(t, IsNotFoundError(err))

	_, err = h.svc.RespondBatch(t.Context(), BatchRespondInput{BatchID: created.Batch.ID, ActorID: owner, Action: "approve_some"})
	require.ErrorIs(t, err, ErrInvalidAction)

	_, err = h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID:   created.Batch.ID,
		ActorID:   owner,
		Action:    models.BatchActionSelective,
		Decisions: map[string]string{ids[0]: "accept", ids[1]: "accept", "stranger": "reject"},
	})
	require.ErrorIs(t, err, ErrUnknownMember)

	_, err = h.svc.RespondBatch(t.Context(), BatchRespondInput{
		BatchID:   created.Batch.ID,
		ActorID:   owner,
		Action:    models.BatchActionSelective,
		Decisions: map[string]string{ids[0]: "accept", ids[1]: "maybe"},
	})
	require.ErrorIs(t, err, ErrInvalidDecision)
}
