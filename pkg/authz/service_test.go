package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPolicy = `
mode: enforce
roles:
  - actor: 1
    role: hr_admin
grants:
  - to: role:hr_admin
    subjects: "*"
    field_groups: [manager_check_in, official_check_in, milestone_certification]
  - to: user:7
    subjects: "subject:12"
    field_groups: [manager_check_in]
`

func newTestService(t *testing.T, policy string) *Service {
	t.Helper()
	p, err := ParsePolicy([]byte(policy))
	require.NoError(t, err)
	svc, err := NewService(Config{Policy: p})
	require.NoError(t, err)
	return svc
}

func TestService_RoleGrantCoversEverySubject(t *testing.T) {
	svc := newTestService(t, testPolicy)
	ctx := context.Background()

	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(1), SubjectID: 99, FieldGroup: FieldGroupOfficialCheckIn}))
	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(1), SubjectID: 3, FieldGroup: FieldGroupMilestoneCertification}))
}

func TestService_DirectGrantIsScopedToSubjectAndGroup(t *testing.T) {
	svc := newTestService(t, testPolicy)
	ctx := context.Background()

	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(7), SubjectID: 12, FieldGroup: FieldGroupManagerCheckIn}))
	require.False(t, svc.Allowed(ctx, Request{Actor: NewActor(7), SubjectID: 13, FieldGroup: FieldGroupManagerCheckIn}))
	require.False(t, svc.Allowed(ctx, Request{Actor: NewActor(7), SubjectID: 12, FieldGroup: FieldGroupOfficialCheckIn}))
}

func TestService_ShadowModeAdmitsDenials(t *testing.T) {
	svc := newTestService(t, "mode: shadow\n")
	require.Equal(t, ModeShadow, svc.Mode())
	require.True(t, svc.Allowed(context.Background(), Request{Actor: NewActor(5), SubjectID: 1, FieldGroup: FieldGroupManagerCheckIn}))

	allowed, err := svc.Check(Request{Actor: NewActor(5), SubjectID: 1, FieldGroup: FieldGroupManagerCheckIn})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestService_DisabledModeAdmitsEverything(t *testing.T) {
	svc := newTestService(t, "mode: disabled\n")
	require.True(t, svc.Allowed(context.Background(), Request{Actor: NewActor(5), SubjectID: 1, FieldGroup: FieldGroupOfficialCheckIn}))
}

func TestService_PredicateHonoursAdminOverride(t *testing.T) {
	svc := newTestService(t, "mode: enforce\n")
	pred := svc.Predicate()
	ctx := context.Background()

	require.False(t, pred(ctx, Request{Actor: NewActor(5), SubjectID: 1, FieldGroup: FieldGroupManagerCheckIn}))
	require.True(t, pred(ctx, Request{Actor: NewActor(5, AdminOverride), SubjectID: 1, FieldGroup: FieldGroupManagerCheckIn}))
}

func TestService_RuntimeGrant(t *testing.T) {
	svc := newTestService(t, "mode: enforce\n")
	require.NoError(t, svc.Grant(4, "subject:*", FieldGroupManagerCheckIn))
	require.True(t, svc.Allowed(context.Background(), Request{Actor: NewActor(4), SubjectID: 77, FieldGroup: FieldGroupManagerCheckIn}))
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o644))

	p, err := LoadPolicyFile(path)
	require.NoError(t, err)
	require.Equal(t, ModeEnforce, p.Mode)
	require.Len(t, p.Grants, 2)

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParsePolicy_RejectsIncompleteGrant(t *testing.T) {
	_, err := ParsePolicy([]byte("grants:\n  - to: user:1\n"))
	require.Error(t, err)
}

func TestWithAdminOverride_NilNext(t *testing.T) {
	pred := WithAdminOverride(nil)
	require.False(t, pred(context.Background(), Request{Actor: NewActor(1)}))
	require.True(t, pred(context.Background(), Request{Actor: NewActor(1, AdminOverride)}))
}

func TestManagerOf(t *testing.T) {
	pred := ManagerOf(func(_ context.Context, actorID, subjectID int64) bool {
		return actorID == 2 && subjectID == 3
	})
	require.True(t, pred(context.Background(), Request{Actor: NewActor(2), SubjectID: 3}))
	require.False(t, pred(context.Background(), Request{Actor: NewActor(2), SubjectID: 4}))
}

func TestLoadPolicyFile_ShippedExample(t *testing.T) {
	p, err := LoadPolicyFile(filepath.Join("..", "..", "config", "access", "talent_policy.yaml"))
	require.NoError(t, err)
	svc, err := NewService(Config{Policy: p})
	require.NoError(t, err)
	ctx := context.Background()

	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(900), SubjectID: 5, FieldGroup: FieldGroupOfficialCheckIn}))
	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(901), SubjectID: 5, FieldGroup: FieldGroupMilestoneCertification}))
	require.False(t, svc.Allowed(ctx, Request{Actor: NewActor(901), SubjectID: 5, FieldGroup: FieldGroupManagerCheckIn}))
	require.True(t, svc.Allowed(ctx, Request{Actor: NewActor(200), SubjectID: 100, FieldGroup: FieldGroupManagerCheckIn}))
}
