package apihub

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoAPI is the part of the Cognito identity provider client UserPool
// needs.
type CognitoAPI interface {
	AdminInitiateAuth(ctx context.Context, params *cip.AdminInitiateAuthInput, optFns ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, params *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminSetUserPassword(ctx context.Context, params *cip.AdminSetUserPasswordInput, optFns ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error)
	AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

var errUnverifiedEmailChange = errors.New("changing to an unverified email is not implemented")

// UserPool wraps the admin operations of one Cognito user pool.
type UserPool struct {
	client   CognitoAPI
	poolID   string
	clientID string
}

func NewUserPool(client CognitoAPI, poolID, clientID string) *UserPool {
	return &UserPool{client: client, poolID: poolID, clientID: clientID}
}

type AuthenticateOutput struct {
	Success     bool
	AccessToken string
}

func withCognitoLogger(ctx context.Context) func(*cip.Options) {
	return func(o *cip.Options) {
		o.Logger = LogBufferFrom(ctx)
	}
}

// Authenticate signs a user in with username and password. Wrong
// credentials are an unsuccessful result, not an error.
func (p *UserPool) Authenticate(ctx context.Context, username, password string) (AuthenticateOutput, error) {
	out, err := p.client.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
		AuthFlow:   types.AuthFlowTypeAdminUserPasswordAuth,
		UserPoolId: aws.String(p.poolID),
		ClientId:   aws.String(p.clientID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	}, withCognitoLogger(ctx))
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		if errors.As(err, &notAuthorized) {
			return AuthenticateOutput{}, nil
		}
		LogBufferFrom(ctx).Issue("Failed to authenticate", "error", err.Error())
		return AuthenticateOutput{}, err
	}

	if out.AuthenticationResult == nil || aws.ToString(out.AuthenticationResult.AccessToken) == "" {
		return AuthenticateOutput{}, nil
	}
	return AuthenticateOutput{Success: true, AccessToken: aws.ToString(out.AuthenticationResult.AccessToken)}, nil
}

func (p *UserPool) UpdateUserAttribute(ctx context.Context, username, name, value string) error {
	_, err := p.client.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(name), Value: aws.String(value)},
		},
	}, withCognitoLogger(ctx))
	if err != nil {
		LogBufferFrom(ctx).Issue("Failed to update attribute", "attribute", name, "error", err.Error())
		return err
	}
	return nil
}

// GetUserAttributes returns the user's attributes as a map.
func (p *UserPool) GetUserAttributes(ctx context.Context, username string) (map[string]string, error) {
	logs := LogBufferFrom(ctx)

	out, err := p.client.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	}, withCognitoLogger(ctx))
	if err != nil {
		logs.Issue("Failed to get attributes", "error", err.Error())
		return nil, err
	}

	attributes := make(map[string]string, len(out.UserAttributes))
	if len(out.UserAttributes) == 0 {
		logs.Issue("No cognito attributes found for user", "username", username)
		return attributes, nil
	}
	for _, a := range out.UserAttributes {
		attributes[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return attributes, nil
}

func (p *UserPool) GetUserAttribute(ctx context.Context, username, name string) (string, bool, error) {
	attributes, err := p.GetUserAttributes(ctx, username)
	if err != nil {
		return "", false, err
	}
	v, ok := attributes[name]
	return v, ok, nil
}

// UpdateUserEmail sets a new, already verified, email address. An address
// used by another user throws RESOURCE_ALREADY_EXISTS.
func (p *UserPool) UpdateUserEmail(ctx context.Context, username, email string, verified bool) error {
	if !verified {
		return errUnverifiedEmailChange
	}

	_, err := p.client.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		UserAttributes: []types.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
			{Name: aws.String("email_verified"), Value: aws.String("true")},
		},
	}, withCognitoLogger(ctx))
	if err != nil {
		var aliasExists *types.AliasExistsException
		if errors.As(err, &aliasExists) {
			return ThrowResponse(CodeResourceAlreadyExists)
		}
		LogBufferFrom(ctx).Issue("Failed to update email", "error", err.Error())
		return err
	}
	return nil
}

// UpdatePassword sets a permanent password.
func (p *UserPool) UpdatePassword(ctx context.Context, username, password string) error {
	_, err := p.client.AdminSetUserPassword(ctx, &cip.AdminSetUserPasswordInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
		Password:   aws.String(password),
		Permanent:  true,
	}, withCognitoLogger(ctx))
	if err != nil {
		LogBufferFrom(ctx).Issue("Failed to update password", "error", err.Error())
		return err
	}
	return nil
}

func (p *UserPool) DeleteUser(ctx context.Context, username string) error {
	_, err := p.client.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	}, withCognitoLogger(ctx))
	if err != nil {
		LogBufferFrom(ctx).Issue("Failed to delete user", "error", err.Error())
		return err
	}
	return nil
}
