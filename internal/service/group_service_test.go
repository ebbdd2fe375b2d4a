package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/models"
)

type recordedNotify struct {
	userID    string
	groupID   uint
	groupName string
	actorID   string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []recordedNotify
}

func (n *recordingNotifier) NotifyAddedToGroup(_ context.Context, userID string, groupID uint, groupName, actorID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recordedNotify{userID: userID, groupID: groupID, groupName: groupName, actorID: actorID})
}

type fakeStorage struct {
	uploads []string
}

func (f *fakeStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	f.uploads = append(f.uploads, name)
	return "https://cdn.test/" + name, nil
}

func newTestGroups(repo *stubGroupRepo, social *stubSocialRepo, storage FileStorage, notifier GroupNotifier) GroupService {
	return NewGroupService(repo, social, storage, notifier, zerolog.Nop())
}

func TestCreateGroupSkipsUnknownAndDuplicateMembers(t *testing.T) {
	repo := newStubGroupRepo()
	social := newStubSocialRepo()
	social.users["ben"] = "Ben"
	social.users["carl"] = "Carl"
	notifier := &recordingNotifier{}
	svc := newTestGroups(repo, social, nil, notifier)

	group, err := svc.CreateGroup(context.Background(), "ava", dto.GroupCreateRequest{
		Name:      "  friday crew  ",
		MemberIDs: []string{"ben", "ghost", "ben", "ava", "carl", ""},
	})
	require.NoError(t, err)
	require.Equal(t, "friday crew", group.Name)

	members := repo.members[group.ID]
	require.Len(t, members, 3, "creator plus the two real members")
	require.Equal(t, "ava", members[0].UserID)
	require.True(t, members[0].IsAdmin, "creator is the sole initial admin")
	require.False(t, members[1].IsAdmin)

	require.Len(t, notifier.calls, 2, "each added member is notified, not the creator")
	require.Equal(t, "ben", notifier.calls[0].userID)
	require.Equal(t, "friday crew", notifier.calls[0].groupName)
	require.Equal(t, "ava", notifier.calls[0].actorID)
}

func TestCreateGroupValidation(t *testing.T) {
	svc := newTestGroups(newStubGroupRepo(), newStubSocialRepo(), nil, nil)

	_, err := svc.CreateGroup(context.Background(), "ava", dto.GroupCreateRequest{Name: "  ", MemberIDs: []string{}})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateGroup(context.Background(), "ava", dto.GroupCreateRequest{Name: "crew"})
	require.True(t, apperr.IsKind(err, apperr.KindValidation), "a nil member list is rejected")
}

func TestCreateGroupFailureNotifiesNobody(t *testing.T) {
	repo := newStubGroupRepo()
	repo.createErr = errors.New("insert failed")
	social := newStubSocialRepo()
	social.users["ben"] = "Ben"
	notifier := &recordingNotifier{}
	svc := newTestGroups(repo, social, nil, notifier)

	_, err := svc.CreateGroup(context.Background(), "ava", dto.GroupCreateRequest{Name: "crew", MemberIDs: []string{"ben"}})
	require.True(t, apperr.IsKind(err, apperr.KindTransient))
	require.Empty(t, notifier.calls)
	require.Empty(t, repo.groups)
}

func seedStubGroup(t *testing.T, repo *stubGroupRepo, name string, admin string, others ...string) models.Group {
	t.Helper()
	group := models.Group{Name: name, CreatedBy: admin}
	members := []models.GroupMember{{UserID: admin, IsAdmin: true}}
	for _, userID := range others {
		members = append(members, models.GroupMember{UserID: userID})
	}
	require.NoError(t, repo.CreateWithMembers(context.Background(), &group, members))
	return group
}

func TestAddMemberAuthorizationAndConflicts(t *testing.T) {
	repo := newStubGroupRepo()
	social := newStubSocialRepo()
	social.users["ben"] = "Ben"
	social.users["carl"] = "Carl"
	svc := newTestGroups(repo, social, nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava", "ben")

	err := svc.AddMember(context.Background(), group.ID, "ben", "carl")
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization), "non-admin cannot add members")

	err = svc.AddMember(context.Background(), group.ID, "ava", "ghost")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	err = svc.AddMember(context.Background(), group.ID, "ava", "ben")
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	require.NoError(t, svc.AddMember(context.Background(), group.ID, "ava", "carl"))
	ids, err := svc.MemberIDs(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, ids, 3)
}

func TestRemoveMemberBlocksSoleAdmin(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava", "ben", "carl")

	err := svc.RemoveMember(context.Background(), group.ID, "ava", "ava")
	require.True(t, apperr.IsKind(err, apperr.KindConflict))

	require.NoError(t, svc.RemoveMember(context.Background(), group.ID, "ava", "ben"))

	err = svc.RemoveMember(context.Background(), group.ID, "ava", "stranger")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLeaveGroupPromotesReplacementAdmin(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava", "ben", "carl")

	require.NoError(t, svc.LeaveGroup(context.Background(), group.ID, "ava"))

	_, err := repo.FindMember(context.Background(), group.ID, "ava")
	require.Error(t, err)

	successor, err := repo.FindMember(context.Background(), group.ID, "ben")
	require.NoError(t, err)
	require.True(t, successor.IsAdmin, "earliest joined member takes over")

	err = svc.LeaveGroup(context.Background(), group.ID, "stranger")
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))
}

func TestLeaveGroupLastMemberNeedsNoPromotion(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "solo", "ava")

	require.NoError(t, svc.LeaveGroup(context.Background(), group.ID, "ava"))
	count, err := repo.CountMembers(context.Background(), group.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestUpdateGroupRequiresAdmin(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava", "ben")

	name := "renamed crew"
	_, err := svc.UpdateGroup(context.Background(), group.ID, "ben", dto.GroupUpdateRequest{Name: &name})
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	updated, err := svc.UpdateGroup(context.Background(), group.ID, "ava", dto.GroupUpdateRequest{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "renamed crew", updated.Name)

	blank := "   "
	_, err = svc.UpdateGroup(context.Background(), group.ID, "ava", dto.GroupUpdateRequest{Name: &blank})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func multipartFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("avatar", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(10 << 20)
	require.NoError(t, err)
	return form.File["avatar"][0]
}

func TestUploadAvatarValidatesImageContent(t *testing.T) {
	repo := newStubGroupRepo()
	storage := &fakeStorage{}
	svc := newTestGroups(repo, newStubSocialRepo(), storage, nil)

	group := seedStubGroup(t, repo, "crew", "ava")

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	updated, err := svc.UploadAvatar(context.Background(), group.ID, "ava", multipartFile(t, "avatar.png", png))
	require.NoError(t, err)
	require.Contains(t, updated.Avatar, "https://cdn.test/")
	require.Len(t, storage.uploads, 1)

	_, err = svc.UploadAvatar(context.Background(), group.ID, "ava", multipartFile(t, "notes.txt", []byte("plain text, not an image")))
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.Len(t, storage.uploads, 1, "rejected uploads never reach storage")
}

func TestUploadAvatarWithoutStorageConfigured(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava")

	_, err := svc.UploadAvatar(context.Background(), group.ID, "ava", nil)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDeleteGroup(t *testing.T) {
	repo := newStubGroupRepo()
	svc := newTestGroups(repo, newStubSocialRepo(), nil, nil)

	group := seedStubGroup(t, repo, "crew", "ava", "ben")

	err := svc.DeleteGroup(context.Background(), group.ID, "ben")
	require.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	require.NoError(t, svc.DeleteGroup(context.Background(), group.ID, "ava"))
	_, err = svc.Group(context.Background(), group.ID)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
