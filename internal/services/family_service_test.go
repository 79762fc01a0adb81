package services

import (
	"strings"

	"github.com/yukikurage/family-task-sync/internal/models"
)

func (suite *ServiceTestSuite) TestCreateAndJoinFamily() {
	family, err := suite.families.CreateFamily(CreateFamilyInput{Name: " Cousins ", AdminID: "loner", DisplayName: "Lo"})
	suite.Require().NoError(err)
	suite.Equal("Cousins", family.Name)
	suite.Len(family.InviteCode, 9)

	_, err = suite.families.JoinFamilyByInvite(JoinFamilyInput{UserID: "grandma", DisplayName: "Grandma", InviteCode: strings.ToLower(family.InviteCode)})
	suite.Require().NoError(err, "codes are matched case-insensitively")

	_, err = suite.families.CreateFamily(CreateFamilyInput{Name: "   ", AdminID: "loner"})
	suite.ErrorIs(err, ErrInvalidFamilyName)

	joined, err := suite.families.JoinFamilyByInvite(JoinFamilyInput{UserID: "kid", DisplayName: "Kiddo", InviteCode: family.InviteCode})
	suite.Require().NoError(err)
	suite.Equal(family.ID, joined.ID)

	_, err = suite.families.JoinFamilyByInvite(JoinFamilyInput{UserID: "kid", InviteCode: family.InviteCode})
	suite.ErrorIs(err, ErrAlreadyFamilyMember)
	_, err = suite.families.JoinFamilyByInvite(JoinFamilyInput{UserID: "dad", InviteCode: family.InviteCode, Role: models.RoleAdmin})
	suite.ErrorIs(err, ErrInvalidRole)
	_, err = suite.families.JoinFamilyByInvite(JoinFamilyInput{UserID: "dad", InviteCode: "nope"})
	suite.ErrorIs(err, ErrInvalidInviteCode)

	_, members, err := suite.families.GetFamilyWithMembers(family.ID)
	suite.Require().NoError(err)
	suite.Len(members, 3)

	memberships, err := suite.families.ListFamiliesForUser("kid")
	suite.Require().NoError(err)
	suite.Len(memberships, 2)
}

func (suite *ServiceTestSuite) TestSession() {
	suite.Equal("fam1", *suite.mom.FamilyID)
	suite.Equal(models.RoleAdmin, suite.mom.Role)
	suite.Equal(models.RoleChild, suite.child.Role)
	suite.False(suite.loner.HasFamily())
	suite.Equal("Loner", suite.loner.DisplayName)

	_, err := suite.families.Session("loner", "fam1")
	suite.ErrorIs(err, ErrNotFamilyMember)
	_, err = suite.families.Session("ghost", "")
	suite.ErrorIs(err, ErrUserNotFound)

	family, err := suite.families.CreateFamily(CreateFamilyInput{Name: "Book club", AdminID: "kid"})
	suite.Require().NoError(err)

	ambiguous, err := suite.families.Session("kid", "")
	suite.Require().NoError(err)
	suite.False(ambiguous.HasFamily())

	chosen, err := suite.families.Session("kid", family.ID)
	suite.Require().NoError(err)
	suite.Equal(family.ID, *chosen.FamilyID)
	suite.Equal(models.RoleAdmin, chosen.Role)
}

func (suite *ServiceTestSuite) TestMemberAdministration() {
	_, err := suite.families.UpdateMemberRole("fam1", "dad", "kid", models.RoleParent)
	suite.ErrorIs(err, ErrNotFamilyAdmin)
	_, err = suite.families.UpdateMemberRole("fam1", "mom", "mom", models.RoleChild)
	suite.ErrorIs(err, ErrCannotChangeOwnRole)
	_, err = suite.families.UpdateMemberRole("fam1", "mom", "loner", models.RoleParent)
	suite.ErrorIs(err, ErrFamilyMemberNotFound)

	promoted, err := suite.families.UpdateMemberRole("fam1", "mom", "kid", models.RoleParent)
	suite.Require().NoError(err)
	suite.Equal(models.RoleParent, promoted.Role)

	suite.ErrorIs(suite.families.RemoveMember("fam1", "mom", "mom"), ErrCannotRemoveYourself)
	suite.ErrorIs(suite.families.RemoveMember("fam1", "dad", "kid"), ErrNotFamilyAdmin)
	suite.Require().NoError(suite.families.RemoveMember("fam1", "mom", "kid"))

	_, members, err := suite.families.GetFamilyWithMembers("fam1")
	suite.Require().NoError(err)
	suite.Len(members, 2)

	renamed, err := suite.families.UpdateFamilyName("fam1", "The Smiths")
	suite.Require().NoError(err)
	suite.Equal("The Smiths", renamed.Name)

	regenerated, err := suite.families.RegenerateInviteCode("fam1")
	suite.Require().NoError(err)
	suite.NotEqual("AAAA-BBBB", regenerated.InviteCode)
}

func (suite *ServiceTestSuite) TestSignupAndLogin() {
	user, err := suite.auth.Signup(SignupInput{Username: " grandpa ", Password: "password123"})
	suite.Require().NoError(err)
	suite.Equal("grandpa", user.Username)
	suite.Equal("grandpa", user.DisplayName)
	suite.NotEqual("password123", user.PasswordHash)

	_, err = suite.auth.Signup(SignupInput{Username: "grandpa", Password: "password123"})
	suite.ErrorIs(err, ErrUsernameTaken)
	_, err = suite.auth.Signup(SignupInput{Username: "grandma", Password: "short"})
	suite.ErrorIs(err, ErrPasswordTooShort)
	_, err = suite.auth.Signup(SignupInput{Username: "  ", Password: "password123"})
	suite.ErrorIs(err, ErrUsernameRequired)

	loggedIn, err := suite.auth.Login(LoginInput{Username: "grandpa", Password: "password123"})
	suite.Require().NoError(err)
	suite.Equal(user.ID, loggedIn.ID)

	_, err = suite.auth.Login(LoginInput{Username: "grandpa", Password: "wrong-password"})
	suite.ErrorIs(err, ErrInvalidCredentials)
	_, err = suite.auth.Login(LoginInput{Username: "nobody", Password: "password123"})
	suite.ErrorIs(err, ErrInvalidCredentials)

	found, err := suite.auth.GetUser(user.ID)
	suite.Require().NoError(err)
	suite.Equal("grandpa", found.Username)
	_, err = suite.auth.GetUser("missing")
	suite.ErrorIs(err, ErrUserNotFound)
}
