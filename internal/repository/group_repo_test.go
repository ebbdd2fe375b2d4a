package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/models"
)

func TestGroupCreateWithMembersAssignsGroupID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupRepository(db)

	group := models.Group{Name: "friday crew", CreatedBy: "gr-ava"}
	members := []models.GroupMember{
		{UserID: "gr-ava", IsAdmin: true},
		{UserID: "gr-ben"},
		{UserID: "gr-carl"},
	}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &group, members))
	require.NotZero(t, group.ID)

	count, err := repo.CountMembers(context.Background(), group.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	admins, err := repo.CountAdmins(context.Background(), group.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), admins)

	listed, err := repo.ListMembers(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, "gr-ava", listed[0].UserID, "admins list first")
}

func TestGroupRemoveMemberPromotingGrantsAdminToOldestSurvivor(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupRepository(db)

	group := models.Group{Name: "promo group", CreatedBy: "gr-dina"}
	members := []models.GroupMember{
		{UserID: "gr-dina", IsAdmin: true},
		{UserID: "gr-erin"},
		{UserID: "gr-finn"},
	}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &group, members))

	require.NoError(t, repo.RemoveMemberPromoting(context.Background(), group.ID, "gr-dina", true))

	_, err := repo.FindMember(context.Background(), group.ID, "gr-dina")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	successor, err := repo.FindMember(context.Background(), group.ID, "gr-erin")
	require.NoError(t, err)
	require.True(t, successor.IsAdmin, "earliest surviving member becomes admin")

	admins, err := repo.CountAdmins(context.Background(), group.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), admins)
}

func TestGroupDeleteCascadeRemovesMessagesAndReads(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupRepository(db)
	messageRepo := NewGroupMessageRepository(db)

	group := models.Group{Name: "cascade group", CreatedBy: "gr-gina"}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &group, []models.GroupMember{
		{UserID: "gr-gina", IsAdmin: true},
		{UserID: "gr-hugo"},
	}))

	message := models.GroupMessage{GroupID: group.ID, SenderID: "gr-gina", Body: "hello"}
	require.NoError(t, messageRepo.CreateWithSenderRead(context.Background(), &message))

	require.NoError(t, repo.DeleteCascade(context.Background(), group.ID))

	_, err := repo.FindByID(context.Background(), group.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var messageCount, readCount, memberCount int64
	require.NoError(t, db.Model(&models.GroupMessage{}).Where("group_id = ?", group.ID).Count(&messageCount).Error)
	require.NoError(t, db.Model(&models.GroupMessageRead{}).Where("message_id = ?", message.ID).Count(&readCount).Error)
	require.NoError(t, db.Model(&models.GroupMember{}).Where("group_id = ?", group.ID).Count(&memberCount).Error)
	require.Zero(t, messageCount)
	require.Zero(t, readCount)
	require.Zero(t, memberCount)
}

func TestGroupListGroupsForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupRepository(db)

	first := models.Group{Name: "list group one", CreatedBy: "gr-iris"}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &first, []models.GroupMember{{UserID: "gr-iris", IsAdmin: true}}))

	second := models.Group{Name: "list group two", CreatedBy: "gr-jack"}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &second, []models.GroupMember{
		{UserID: "gr-jack", IsAdmin: true},
		{UserID: "gr-iris"},
	}))

	groups, err := repo.ListGroupsForUser(context.Background(), "gr-iris")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	groups, err = repo.ListGroupsForUser(context.Background(), "gr-jack")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "list group two", groups[0].Name)
}
