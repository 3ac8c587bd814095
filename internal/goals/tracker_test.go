package goals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentix-ortho/agent-oracle/internal/classifier"
	"github.com/dentix-ortho/agent-oracle/internal/scenario"
)

var testInventory = scenario.DataInventory{
	ParentName:  "Dana Rivera",
	ParentPhone: "2155551234",
	ChildName:   "Mia Rivera",
}

func TestPhoneCollectedFromUserReply(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{ID: "phone", Type: scenario.GoalDataCollection, RequiredFields: []string{"parent_phone"}, Required: true},
	})

	// Agent asks for the phone number; the persona's outgoing reply answers.
	tracker.RecordUserReply(3, classifier.CategoryPhoneRequested, "Sure, it's 2155551234.", testInventory)

	fs, ok := tracker.Field("parent_phone")
	require.True(t, ok)
	assert.Equal(t, "2155551234", fs.Value)
	assert.Equal(t, 3, fs.Turn)
	assert.True(t, tracker.RequiredAchieved())
}

func TestFieldNotCollectedWhenReplyOmitsValue(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{ID: "phone", Type: scenario.GoalDataCollection, RequiredFields: []string{"parent_phone"}, Required: true},
	})

	tracker.RecordUserReply(3, classifier.CategoryPhoneRequested, "I'd rather not say.", testInventory)

	_, ok := tracker.Field("parent_phone")
	assert.False(t, ok)
	assert.False(t, tracker.RequiredAchieved())
}

func TestDataCollectionOrderIndependent(t *testing.T) {
	newTracker := func() *Tracker {
		return NewTracker([]scenario.Goal{
			{
				ID:             "contact",
				Type:           scenario.GoalDataCollection,
				RequiredFields: []string{"parent_name", "parent_phone"},
				Required:       true,
			},
		})
	}

	nameFirst := newTracker()
	nameFirst.RecordUserReply(1, classifier.CategoryNameRequested, "Dana Rivera", testInventory)
	assert.False(t, nameFirst.RequiredAchieved())
	nameFirst.RecordUserReply(2, classifier.CategoryPhoneRequested, "2155551234", testInventory)
	assert.True(t, nameFirst.RequiredAchieved())

	phoneFirst := newTracker()
	phoneFirst.RecordUserReply(1, classifier.CategoryPhoneRequested, "2155551234", testInventory)
	assert.False(t, phoneFirst.RequiredAchieved())
	phoneFirst.RecordUserReply(2, classifier.CategoryNameRequested, "Dana Rivera", testInventory)
	assert.True(t, phoneFirst.RequiredAchieved())
}

func TestFieldCorrectionIsLastWriteWins(t *testing.T) {
	tracker := NewTracker(nil)
	inv := testInventory

	tracker.RecordUserReply(2, classifier.CategoryPhoneRequested, "It's 2155551234", inv)
	inv.ParentPhone = "2675550000"
	tracker.RecordUserReply(5, classifier.CategoryPhoneRequested, "Sorry, actually 2675550000", inv)

	fs, ok := tracker.Field("parent_phone")
	require.True(t, ok)
	assert.Equal(t, "2675550000", fs.Value)
	assert.Equal(t, 5, fs.Turn)
}

func TestBookingGoalAchievedByFlag(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{ID: "booking", Type: scenario.GoalBookingConfirmed, Required: true},
	})

	// Category lost to another signal, but the booking flag is set.
	tracker.RecordAssistantTurn(4, classifier.Result{
		Category:         classifier.CategoryAddressOffered,
		BookingConfirmed: true,
	}, scenario.TurnView{Index: 4})

	assert.True(t, tracker.RequiredAchieved())
}

func TestNonDataGoalsAchievedByCategory(t *testing.T) {
	tests := []struct {
		goalType scenario.GoalType
		category classifier.Category
	}{
		{scenario.GoalTransferInitiated, classifier.CategoryTransferRequested},
		{scenario.GoalConversationEnded, classifier.CategoryGoodbye},
		{scenario.GoalErrorHandled, classifier.CategoryErrorMessage},
	}

	for _, tt := range tests {
		t.Run(string(tt.goalType), func(t *testing.T) {
			tracker := NewTracker([]scenario.Goal{{ID: "g", Type: tt.goalType, Required: true}})
			tracker.RecordAssistantTurn(2, classifier.Result{Category: tt.category}, scenario.TurnView{Index: 2})
			assert.True(t, tracker.RequiredAchieved())
		})
	}
}

func TestAchievementIsPermanent(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{ID: "transfer", Type: scenario.GoalTransferInitiated, Required: true},
	})

	tracker.RecordAssistantTurn(2, classifier.Result{Category: classifier.CategoryTransferRequested}, scenario.TurnView{Index: 2})
	require.True(t, tracker.RequiredAchieved())

	tracker.RecordAssistantTurn(3, classifier.Result{Category: classifier.CategoryUnknown}, scenario.TurnView{Index: 3})
	assert.True(t, tracker.RequiredAchieved(), "goals never un-achieve")

	statuses := tracker.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].AchievedTurn)
}

func TestCustomGoalPredicate(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{
			ID:       "mentions-retainer",
			Type:     scenario.GoalCustom,
			Required: true,
			Predicate: func(v scenario.TurnView) bool {
				return v.Category == classifier.CategorySlotOffered && v.Index >= 2
			},
		},
	})

	tracker.RecordAssistantTurn(1, classifier.Result{Category: classifier.CategorySlotOffered},
		scenario.TurnView{Index: 1, Category: classifier.CategorySlotOffered})
	assert.False(t, tracker.RequiredAchieved())

	tracker.RecordAssistantTurn(2, classifier.Result{Category: classifier.CategorySlotOffered},
		scenario.TurnView{Index: 2, Category: classifier.CategorySlotOffered})
	assert.True(t, tracker.RequiredAchieved())
}

func TestStatusesReportMissingFields(t *testing.T) {
	tracker := NewTracker([]scenario.Goal{
		{
			ID:             "contact",
			Type:           scenario.GoalDataCollection,
			RequiredFields: []string{"parent_phone", "parent_name", "child_name"},
			Required:       true,
		},
	})
	tracker.RecordUserReply(1, classifier.CategoryPhoneRequested, "2155551234", testInventory)

	statuses := tracker.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Achieved)
	assert.Equal(t, []string{"child_name", "parent_name"}, statuses[0].MissingFields)
	assert.Equal(t, []string{"contact"}, tracker.MissingRequiredGoalIDs())
}

func TestSnapshotIsACopy(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.RecordUserReply(1, classifier.CategoryPhoneRequested, "2155551234", testInventory)

	snap := tracker.Snapshot()
	snap["parent_phone"] = FieldState{Value: "tampered"}

	fs, _ := tracker.Field("parent_phone")
	assert.Equal(t, "2155551234", fs.Value)
}
