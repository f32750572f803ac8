package apihub

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCognitoClient struct {
	authOut  *cip.AdminInitiateAuthOutput
	getOut   *cip.AdminGetUserOutput
	updated  *cip.AdminUpdateUserAttributesInput
	password *cip.AdminSetUserPasswordInput
	deleted  *cip.AdminDeleteUserInput
	err      error
}

func (f *fakeCognitoClient) AdminInitiateAuth(_ context.Context, _ *cip.AdminInitiateAuthInput, _ ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error) {
	return f.authOut, f.err
}

func (f *fakeCognitoClient) AdminUpdateUserAttributes(_ context.Context, params *cip.AdminUpdateUserAttributesInput, _ ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error) {
	f.updated = params
	return &cip.AdminUpdateUserAttributesOutput{}, f.err
}

func (f *fakeCognitoClient) AdminGetUser(_ context.Context, _ *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	return f.getOut, f.err
}

func (f *fakeCognitoClient) AdminSetUserPassword(_ context.Context, params *cip.AdminSetUserPasswordInput, _ ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error) {
	f.password = params
	return &cip.AdminSetUserPasswordOutput{}, f.err
}

func (f *fakeCognitoClient) AdminDeleteUser(_ context.Context, params *cip.AdminDeleteUserInput, _ ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error) {
	f.deleted = params
	return &cip.AdminDeleteUserOutput{}, f.err
}

func TestUserPoolAuthenticate(t *testing.T) {
	testcases := []struct {
		name        string
		client      *fakeCognitoClient
		expected    AuthenticateOutput
		expectedErr bool
	}{
		{
			name: "signed in",
			client: &fakeCognitoClient{authOut: &cip.AdminInitiateAuthOutput{
				AuthenticationResult: &types.AuthenticationResultType{AccessToken: aws.String("token")},
			}},
			expected: AuthenticateOutput{Success: true, AccessToken: "token"},
		},
		{
			name:     "challenge without result",
			client:   &fakeCognitoClient{authOut: &cip.AdminInitiateAuthOutput{}},
			expected: AuthenticateOutput{},
		},
		{
			name:     "wrong password",
			client:   &fakeCognitoClient{err: &types.NotAuthorizedException{Message: aws.String("Incorrect username or password.")}},
			expected: AuthenticateOutput{},
		},
		{
			name:        "service failure",
			client:      &fakeCognitoClient{err: errors.New("throttled")},
			expectedErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			pool := NewUserPool(tc.client, "pool", "client")
			out, err := pool.Authenticate(t.Context(), "sam", "secret")
			if tc.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestUserPoolAttributes(t *testing.T) {
	client := &fakeCognitoClient{getOut: &cip.AdminGetUserOutput{UserAttributes: []types.AttributeType{
		{Name: aws.String("email"), Value: aws.String("sam@example.com")},
		{Name: aws.String("locale"), Value: aws.String("de")},
	}}}
	pool := NewUserPool(client, "pool", "client")

	v, ok, err := pool.GetUserAttribute(t.Context(), "sam", "locale")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "de", v)

	_, ok, err = pool.GetUserAttribute(t.Context(), "sam", "nickname")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, pool.UpdateUserAttribute(t.Context(), "sam", "locale", "en"))
	assert.Equal(t, "en", aws.ToString(client.updated.UserAttributes[0].Value))
}

func TestUserPoolUpdateEmail(t *testing.T) {
	t.Run("verified email", func(t *testing.T) {
		client := &fakeCognitoClient{}
		require.NoError(t, NewUserPool(client, "pool", "client").UpdateUserEmail(t.Context(), "sam", "new@example.com", true))
		require.Len(t, client.updated.UserAttributes, 2)
		assert.Equal(t, "email_verified", aws.ToString(client.updated.UserAttributes[1].Name))
	})

	t.Run("unverified email", func(t *testing.T) {
		err := NewUserPool(&fakeCognitoClient{}, "pool", "client").UpdateUserEmail(t.Context(), "sam", "new@example.com", false)
		assert.ErrorIs(t, err, errUnverifiedEmailChange)
	})

	t.Run("email taken", func(t *testing.T) {
		client := &fakeCognitoClient{err: &types.AliasExistsException{}}
		err := NewUserPool(client, "pool", "client").UpdateUserEmail(t.Context(), "sam", "taken@example.com", true)
		var throwable *ThrowableResponse
		require.ErrorAs(t, err, &throwable)
		assert.Equal(t, CodeResourceAlreadyExists, throwable.Response.ErrorCode())
	})
}

func TestUserPoolPasswordAndDelete(t *testing.T) {
	client := &fakeCognitoClient{}
	pool := NewUserPool(client, "pool", "client")

	require.NoError(t, pool.UpdatePassword(t.Context(), "sam", "n3w-secret"))
	assert.True(t, client.password.Permanent)

	require.NoError(t, pool.DeleteUser(t.Context(), "sam"))
	assert.Equal(t, "sam", aws.ToString(client.deleted.Username))

	client.err = errors.New("user not found")
	assert.Error(t, pool.DeleteUser(t.Context(), "sam"))
}
